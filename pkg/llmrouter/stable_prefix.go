package llmrouter

import "strings"

// StablePrefixBuilder assembles refiner prompts so the leading system
// message is byte-identical across calls (spec.md §4.5 "the stable prefix"):
// persona + fixed instructions + a per-user summary regenerated only on a
// trigger condition, never per-message. Dynamic content (draft, latest
// user message) is appended strictly after. The builder neither measures
// nor pads the prefix, so it spans 1024 tokens or more only when persona,
// instructions and summary together are that long.
type StablePrefixBuilder struct {
	Persona      string
	Instructions string
}

// BuildStablePrefix concatenates persona + instructions + summary into one
// system message. summary must already be the stable, trigger-refreshed
// value (e.g. from memory.Manager.Summary), never interpolated per-message.
func (b StablePrefixBuilder) BuildStablePrefix(summary string) string {
	var sb strings.Builder
	sb.WriteString(b.Persona)
	sb.WriteString("\n\n")
	sb.WriteString(b.Instructions)
	if summary != "" {
		sb.WriteString("\n\n")
		sb.WriteString(summary)
	}
	return sb.String()
}

// BuildRefinerMessages assembles the full message list for a refiner call:
// the stable prefix as a system message, followed strictly by dynamic
// content (spec.md §4.5: "Dynamic parts ... appear strictly after the
// stable prefix").
func (b StablePrefixBuilder) BuildRefinerMessages(summary string, dynamic ...Message) []Message {
	out := make([]Message, 0, len(dynamic)+1)
	out = append(out, Message{Role: "system", Content: b.BuildStablePrefix(summary)})
	out = append(out, dynamic...)
	return out
}
