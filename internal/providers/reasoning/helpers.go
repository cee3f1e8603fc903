package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"contentgen/internal/domain"
	"contentgen/internal/providers/jsonpayload"
)

const selectSystemPrompt = "You are the art director of a bakery cafe's social media account. " +
	"You choose which photographed assets and scenarios go into the next post. " +
	"Respond only with JSON."

const composeSystemPrompt = "You write prompts for an image generation model that edits a real product photo into a social media post. " +
	"Keep the product exactly as photographed. Respond only with JSON."

type modelSelectPayload struct {
	Choices   map[string]string `json:"choices"`
	Reasoning string            `json:"reasoning"`
}

type modelComposePayload struct {
	Prompt    string `json:"prompt"`
	Reasoning string `json:"reasoning"`
}

func buildSelectPrompt(req SelectRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("Pick exactly one option id from every group. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"choices":{"<group key>":"<option id>"},"reasoning":string}`)
	fmt.Fprintf(sb, ". Purpose: %s. Time slot: %q. Mood: %q. Tags: %q.\n", coalesce(req.Purpose, "selection"), req.Context.TimeSlot, req.Context.Mood, req.Context.Tags)
	for _, note := range req.Notes {
		fmt.Fprintf(sb, "Constraint: %s\n", note)
	}
	groups, _ := json.Marshal(req.Groups)
	sb.WriteString("Groups (options are ordered by score, best first): ")
	sb.Write(groups)
	return sb.String()
}

func buildComposePrompt(req ComposeRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("Write one image generation prompt. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"prompt":string,"reasoning":string}`)
	fmt.Fprintf(sb, ". Scenario: %s (%s). ", req.Scenario.Name, req.Scenario.Description)
	if req.Composition != nil {
		fmt.Fprintf(sb, "Composition: %s. ", req.Composition.Description)
	}
	if req.HandStyle != nil {
		fmt.Fprintf(sb, "Hands: %s. ", req.HandStyle.Description)
	}
	for _, role := range sortedRoles(req.Assets) {
		ref := req.Assets[role]
		fmt.Fprintf(sb, "%s: %s (%s). ", role, coalesce(ref.Name, ref.ID), ref.Subtype)
	}
	if req.SpecialElement != nil {
		fmt.Fprintf(sb, "Include the recurring element %s: %s. ", req.SpecialElement.Name, req.SpecialElement.Description)
	}
	fmt.Fprintf(sb, "Time slot: %q. Mood: %q. Aspect ratio: %s.", req.Context.TimeSlot, req.Context.Mood, coalesce(req.AspectRatio, "4:5"))
	if hint := strings.TrimSpace(req.Hint); hint != "" {
		fmt.Fprintf(sb, " A previous attempt was rejected; address this: %s", hint)
	}
	return sb.String()
}

// TemplatePrompt renders a deterministic prompt without calling a model.
func TemplatePrompt(req ComposeRequest) string {
	sb := &strings.Builder{}
	product := req.Assets[domain.RoleProduct]
	fmt.Fprintf(sb, "A natural, appetizing photograph of %s", coalesce(product.Name, product.Subtype, "the product"))
	if desc := strings.TrimSpace(req.Scenario.Description); desc != "" {
		fmt.Fprintf(sb, ", %s", desc)
	}
	sb.WriteString(".")
	if req.Composition != nil && req.Composition.Description != "" {
		fmt.Fprintf(sb, " Composition: %s.", req.Composition.Description)
	}
	if req.HandStyle != nil && req.HandStyle.Description != "" {
		fmt.Fprintf(sb, " Hands: %s.", req.HandStyle.Description)
	}
	for _, role := range sortedRoles(req.Assets) {
		if role == domain.RoleProduct {
			continue
		}
		ref := req.Assets[role]
		fmt.Fprintf(sb, " Use the %s %s.", coalesce(ref.Name, ref.ID), role)
	}
	if req.SpecialElement != nil {
		fmt.Fprintf(sb, " Include %s somewhere in the frame.", coalesce(req.SpecialElement.Description, req.SpecialElement.Name))
	}
	if req.Context.TimeSlot != "" || req.Context.Mood != "" {
		fmt.Fprintf(sb, " Light and mood suited to %s, %s.", coalesce(req.Context.TimeSlot, "daytime"), coalesce(req.Context.Mood, "calm"))
	}
	sb.WriteString(" Keep the product exactly as photographed.")
	if hint := strings.TrimSpace(req.Hint); hint != "" {
		fmt.Fprintf(sb, " %s", hint)
	}
	return sb.String()
}

// decodeDecision parses a select response and keeps only choices for groups
// that were asked about.
func decodeDecision(raw string, req SelectRequest) (Decision, error) {
	payload, err := jsonpayload.Parse[modelSelectPayload](raw)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}
	if len(payload.Choices) == 0 {
		return Decision{}, fmt.Errorf("%w: no choices", domain.ErrInvalidResponse)
	}
	asked := make(map[string]struct{}, len(req.Groups))
	for _, g := range req.Groups {
		asked[g.Key] = struct{}{}
	}
	choices := make(map[string]string, len(payload.Choices))
	for key, id := range payload.Choices {
		if _, ok := asked[key]; !ok {
			continue
		}
		if id = strings.TrimSpace(id); id != "" {
			choices[key] = id
		}
	}
	return Decision{Choices: choices, Reasoning: strings.TrimSpace(payload.Reasoning)}, nil
}

func decodeComposition(raw string) (Composition, error) {
	payload, err := jsonpayload.Parse[modelComposePayload](raw)
	if err != nil {
		return Composition{}, fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}
	prompt := strings.TrimSpace(payload.Prompt)
	if prompt == "" {
		return Composition{}, fmt.Errorf("%w: empty prompt", domain.ErrInvalidResponse)
	}
	return Composition{Prompt: prompt, Reasoning: strings.TrimSpace(payload.Reasoning)}, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
