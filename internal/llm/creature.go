// Creature generation: each donation asks the model to imagine a new being.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talgya/mini-ecosystem/internal/agents"
)

const creatureSystemPrompt = "You are a creative AI that generates unique digital creatures for an ecosystem. Always respond with valid JSON only."

// CreatureOracle asks the model for creature attributes. It satisfies
// agents.Oracle; the spawner validates whatever it returns.
type CreatureOracle struct {
	Client *Client
}

// Generate requests one creature.
func (o CreatureOracle) Generate(ctx context.Context) (agents.GeneratedAttributes, error) {
	if !o.Client.Enabled() {
		return agents.GeneratedAttributes{}, fmt.Errorf("LLM client not configured")
	}
	response, err := o.Client.Complete(ctx, creatureSystemPrompt, creaturePrompt(), 300)
	if err != nil {
		return agents.GeneratedAttributes{}, fmt.Errorf("creature generation: %w", err)
	}
	return parseCreature(response)
}

func creaturePrompt() string {
	var b strings.Builder
	b.WriteString("Create a unique digital creature for an ecosystem garden. Return ONLY a JSON object with this exact structure:\n\n")
	b.WriteString(`{
  "name": "unique creature name",
  "species": "creature species/type",
  "personality": {
    "traits": ["select 2-3 from: `)
	b.WriteString(strings.Join(agents.BehaviorTraits, ", "))
	b.WriteString(`"],
    "energy": number between 0-100
  },
  "appearance": {
    "color": "hex color code (e.g., #FF5733)",
    "size": number between 0.5-2.0,
    "shape": "one of: `)
	shapes := make([]string, len(agents.Shapes))
	for i, s := range agents.Shapes {
		shapes[i] = string(s)
	}
	b.WriteString(strings.Join(shapes, ", "))
	b.WriteString(`",
    "features": ["select 1-3 from: `)
	b.WriteString(strings.Join(agents.Features, ", "))
	b.WriteString(`"]
  }
}

Make each creature unique and interesting. Ensure personality traits match the appearance and features.`)
	return b.String()
}

func parseCreature(response string) (agents.GeneratedAttributes, error) {
	// Find JSON object in response.
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return agents.GeneratedAttributes{}, fmt.Errorf("no JSON object found in response")
	}

	var attrs agents.GeneratedAttributes
	if err := json.Unmarshal([]byte(response[start:end+1]), &attrs); err != nil {
		return agents.GeneratedAttributes{}, fmt.Errorf("parse creature: %w", err)
	}
	return attrs, nil
}
