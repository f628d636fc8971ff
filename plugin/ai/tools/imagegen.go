package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ImageGenerationTool is the ability id for image generation.
const ImageGenerationTool = "image_generation"

const imageGenSchema = `{
	"type": "object",
	"properties": {
		"prompt": {
			"type": "string",
			"description": "A detailed description of the image to generate"
		},
		"size": {
			"type": "string",
			"enum": ["1024x1024", "1536x1024", "1024x1536"],
			"description": "The image dimensions"
		}
	},
	"required": ["prompt"]
}`

type imageGenArgs struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

// ImageService generates images and stores them durably, returning their URLs.
type ImageService interface {
	GenerateAndStore(ctx context.Context, userID int32, prompt string, size string) ([]string, error)
}

// NewImageGenAdapter returns an adapter that offers image generation backed
// by the given service.
func NewImageGenAdapter(service ImageService) Adapter {
	return func(tc *Context) []*Definition {
		if service == nil || !tc.IsEnabled(ImageGenerationTool) {
			return nil
		}
		userID := tc.UserID
		return []*Definition{{
			Name:        ImageGenerationTool,
			Description: "Generate an image from a text description.",
			Parameters:  json.RawMessage(imageGenSchema),
			Execute: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var parsed imageGenArgs
				if err := json.Unmarshal(args, &parsed); err != nil {
					return nil, fmt.Errorf("invalid image arguments: %w", err)
				}
				if parsed.Prompt == "" {
					return nil, fmt.Errorf("empty image prompt")
				}
				urls, err := service.GenerateAndStore(ctx, userID, parsed.Prompt, parsed.Size)
				if err != nil {
					return nil, err
				}
				return json.Marshal(map[string]any{"urls": urls})
			},
		}}
	}
}
