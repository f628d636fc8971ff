package v1

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v4"

	"github.com/aurachat/aura/internal/profile"
	"github.com/aurachat/aura/plugin/ai/tools"
	"github.com/aurachat/aura/server/ai"
	"github.com/aurachat/aura/server/router/api/v1/chat"
	"github.com/aurachat/aura/storage"
	"github.com/aurachat/aura/store"
)

// APIV1Service wires the HTTP API surface together.
type APIV1Service struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store
	Blob    *storage.LocalStore

	ChatHandler *chat.Handler
}

// NewAPIV1Service assembles the chat pipeline around the given generator and
// blob store.
func NewAPIV1Service(secret string, profile *profile.Profile, s *store.Store, generator ai.Generator, blob *storage.LocalStore) *APIV1Service {
	builder := chat.NewContextBuilder(nil)
	lifecycle := chat.NewLifecycle(s, generator, profile.TitleModel)

	adapters := []tools.Adapter{
		tools.NewWebSearchAdapter(profile.SearchEndpoint, nil),
	}
	if imageModel := ai.LookupModel("gpt-image-1"); imageModel != nil {
		adapters = append(adapters, tools.NewImageGenAdapter(&imageService{
			generator: generator,
			model:     imageModel,
			blob:      blob,
		}))
	}
	registry := tools.NewRegistry(adapters...)

	orchestrator := chat.NewOrchestrator(s, builder, registry, generator, lifecycle, blob)

	return &APIV1Service{
		Secret:      secret,
		Profile:     profile,
		Store:       s,
		Blob:        blob,
		ChatHandler: chat.NewHandler(s, orchestrator),
	}
}

// RegisterRoutes mounts the versioned API group on the echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.Use(middleware.CORS())
	g.Use(s.authMiddleware)

	s.ChatHandler.RegisterRoutes(g)
	s.registerThreadRoutes(g)
	s.registerAttachmentRoutes(g)
}

// imageService backs the image generation tool for text models. Generated
// images are persisted to the blob store so the tool can return durable URLs.
type imageService struct {
	generator ai.Generator
	model     *ai.Model
	blob      storage.BlobStore
}

func (s *imageService) GenerateAndStore(ctx context.Context, userID int32, prompt string, size string) ([]string, error) {
	images, err := s.generator.GenerateImages(ctx, &ai.ImageRequest{
		Model:  s.model,
		Prompt: prompt,
		Size:   size,
		Count:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("the image model returned no images")
	}

	urls := make([]string, 0, len(images))
	for _, img := range images {
		name := shortuuid.New() + extensionForMime(img.MimeType)
		blob, err := s.blob.Put(ctx, name, img.MimeType, img.Data)
		if err != nil {
			return nil, err
		}
		urls = append(urls, blob.URL)
	}
	return urls, nil
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

var _ tools.ImageService = (*imageService)(nil)
