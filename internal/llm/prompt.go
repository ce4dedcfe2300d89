package llm

import (
	"fmt"
	"strings"

	"OpenMCP-Dialog/internal/tooling"
)

// JSONGuard 追加在用户输入之后，要求模型只输出 JSON。
const JSONGuard = "You MUST return ONLY a valid JSON object."

const intentRules = `
Output format (STRICT JSON only, no extra text):
{
  "intents": [
    {
      "name": "leave_request",
      "confidence": 0.95,
      "args": {
        "employee_id": "E-001",
        "start": "2025-05-10",
        "end": "2025-05-12",
        "leave_type": "annual"
      }
    }
  ]
}

Rules:
- Always return JSON ONLY.
- Always include all required args for the detected intent.
- If a required argument is not provided by the user, set its value to null.
- Do not invent values that the user did not provide.
- If multiple intents exist, include them in "intents" array in execution order.
- If the message is small talk, return {"intents": []}.
- Do not explain, only return JSON.`

// BuildIntentPrompt 根据当前工具清单生成意图识别的系统提示。
func BuildIntentPrompt(tools []tooling.Tool) string {
	var b strings.Builder
	b.WriteString("You are an intent detection module for an AI HR assistant.\n")
	b.WriteString("Your job is to map a user query into one or more intents, along with structured arguments.\n\n")
	b.WriteString("Available intents:\n")
	for idx, tool := range tools {
		required := tool.Schema.RequiredFields()
		requiredText := "none"
		if len(required) > 0 {
			requiredText = strings.Join(required, ", ")
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", idx+1, tool.Name, tool.Description)
		fmt.Fprintf(&b, "   Required args: %s\n", requiredText)
	}
	b.WriteString(intentRules)
	return b.String()
}

// ComposeDetectionInput 拼接对话记忆与当前用户消息。
func ComposeDetectionInput(system, history, message string) string {
	return fmt.Sprintf("%s\n\nConversation memory:\n%s\n\nUser message:\n%s\n\n%s", system, history, message, JSONGuard)
}
