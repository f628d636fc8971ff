package ai

// Ability is a named capability a model grants.
type Ability string

const (
	AbilityVision          Ability = "vision"
	AbilityFunctionCalling Ability = "function_calling"
	AbilityPDF             Ability = "pdf"
	AbilityReasoning       Ability = "reasoning"
	AbilityEffortControl   Ability = "effort_control"
	AbilityImageGeneration Ability = "image_generation"
)

// AbilitySet is the set of abilities attached to a model descriptor.
type AbilitySet map[Ability]bool

// NewAbilitySet builds a set from the given abilities.
func NewAbilitySet(abilities ...Ability) AbilitySet {
	set := make(AbilitySet, len(abilities))
	for _, a := range abilities {
		set[a] = true
	}
	return set
}

// Has reports whether the set contains the ability.
func (s AbilitySet) Has(ability Ability) bool {
	return s[ability]
}

// Model describes one selectable model.
type Model struct {
	// ID is the provider-side model identifier.
	ID string
	// Name is the display name.
	Name string
	// Abilities is the capability set used by the context builder.
	Abilities AbilitySet
}

// IsImageModel reports whether the model generates images instead of text.
func (m *Model) IsImageModel() bool {
	return m.Abilities.Has(AbilityImageGeneration)
}

var registry = []*Model{
	{
		ID:        "gpt-4o",
		Name:      "GPT-4o",
		Abilities: NewAbilitySet(AbilityVision, AbilityFunctionCalling, AbilityPDF),
	},
	{
		ID:        "gpt-4o-mini",
		Name:      "GPT-4o mini",
		Abilities: NewAbilitySet(AbilityVision, AbilityFunctionCalling),
	},
	{
		ID:        "o3-mini",
		Name:      "o3-mini",
		Abilities: NewAbilitySet(AbilityFunctionCalling, AbilityReasoning, AbilityEffortControl),
	},
	{
		ID:        "o4-mini",
		Name:      "o4-mini",
		Abilities: NewAbilitySet(AbilityVision, AbilityFunctionCalling, AbilityPDF, AbilityReasoning, AbilityEffortControl),
	},
	{
		ID:        "gpt-image-1",
		Name:      "GPT Image",
		Abilities: NewAbilitySet(AbilityImageGeneration),
	},
}

// LookupModel returns the model descriptor for the given id, or nil when unknown.
func LookupModel(id string) *Model {
	for _, m := range registry {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// ListModels returns all registered model descriptors.
func ListModels() []*Model {
	out := make([]*Model, len(registry))
	copy(out, registry)
	return out
}
