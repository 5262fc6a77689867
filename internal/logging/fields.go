package logging

// Standardized attribute keys shared by all drover components. Keeping them in
// one place keeps log queries stable when components are renamed.
const (
	FieldComponent    = "component"
	FieldTarget       = "target"
	FieldConversation = "conversation"
	FieldGeneration   = "generation"
	FieldQueueIndex   = "queue_index"
	FieldPrompt       = "prompt"
)
