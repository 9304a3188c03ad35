package explain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformed is returned by Parse for any answer that is not a JSON object
// of the expected shape.
var ErrMalformed = errors.New("explain: malformed model output")

// responseSchema accepts the documented object. Unknown keys are allowed;
// missing keys are defaulted after validation.
const responseSchema = `{
  "type": "object",
  "properties": {
    "explanation": {"type": "string"},
    "urgency": {"enum": ["low", "medium", "high"]},
    "next_steps": {"type": "string"},
    "reply_options": {
      "type": ["object", "null"],
      "properties": {
        "tamil": {"type": "string"},
        "tanglish": {"type": "string"},
        "english": {"type": "string"}
      }
    }
  }
}`

var schema = jsonschema.MustCompileString("explanation.schema.json", responseSchema)

// StripFence removes a Markdown code fence around raw and anything before the
// first '{' inside it (such as a "json" language tag). Unfenced input is only
// trimmed.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.Trim(s, "`")
	if i := strings.IndexByte(s, '{'); i >= 0 {
		s = s[i:]
	}
	return s
}

// Parse decodes a model answer into an Explanation. Missing keys default to
// the empty string and urgency "low". Urgency is matched case-insensitively.
// For urgency "high" the reply options are cleared.
func Parse(raw string) (Explanation, error) {
	var v any
	if err := json.Unmarshal([]byte(StripFence(raw)), &v); err != nil {
		return Explanation{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if obj, ok := v.(map[string]any); ok {
		if u, ok := obj["urgency"].(string); ok {
			obj["urgency"] = strings.ToLower(strings.TrimSpace(u))
		}
	}
	if err := schema.Validate(v); err != nil {
		return Explanation{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	obj := v.(map[string]any)

	exp := Explanation{
		Explanation: str(obj, "explanation"),
		Urgency:     Urgency(str(obj, "urgency")),
		NextSteps:   str(obj, "next_steps"),
	}
	if exp.Urgency == "" {
		exp.Urgency = UrgencyLow
	}
	if ro, ok := obj["reply_options"].(map[string]any); ok {
		exp.ReplyOptions = ReplyOptions{
			Tamil:    str(ro, "tamil"),
			Tanglish: str(ro, "tanglish"),
			English:  str(ro, "english"),
		}
	}
	if exp.Urgency == UrgencyHigh {
		exp.ReplyOptions = ReplyOptions{}
	}
	return exp, nil
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
