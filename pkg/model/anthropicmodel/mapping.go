package anthropicmodel

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sealor/pharmacy-agent/pkg/history"
	"github.com/sealor/pharmacy-agent/pkg/model"
	"github.com/tidwall/gjson"
)

// NewMessagesFromItems maps runtime history items onto Messages API messages.
//
// Function calls travel inside the opaque assistant message that requested them, so function call
// items are skipped. Consecutive function outputs are grouped into one user message of tool results.
func NewMessagesFromItems(items []history.Item) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(results) > 0 {
			messages = append(messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, item := range items {
		if item.Kind == history.KindFunctionCallOutput {
			results = append(results, anthropic.NewToolResultBlock(item.CallID, item.Output, failedOutcome(item.Output)))
			continue
		}
		switch item.Kind {
		case history.KindMessage:
			if item.Content == "" {
				continue
			}
			flush()
			if item.Role == history.RoleAssistant {
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(item.Content)))
			} else {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(item.Content)))
			}
		case history.KindOpaque:
			if p, ok := item.Raw.(anthropic.MessageParam); ok {
				flush()
				messages = append(messages, p)
			}
		}
	}
	flush()
	return messages
}

func failedOutcome(output string) bool {
	ok := gjson.Get(output, "ok")
	return ok.Exists() && !ok.Bool()
}

// NewResponseFromAnthropic turns an accumulated message into the runtime items and calls of one round.
func NewResponseFromAnthropic(msg *anthropic.Message) *model.Response {
	out := &model.Response{ID: msg.ID}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	item := history.OpaqueItem(msg.ToParam())
	item.Role = history.RoleAssistant
	item.Content = text.String()
	out.Items = append(out.Items, item)

	for _, block := range msg.Content {
		if block.Type != "tool_use" {
			continue
		}
		args := string(block.Input)
		if args == "" {
			args = "{}"
		}
		out.Items = append(out.Items, history.FunctionCallItem(block.ID, block.Name, args))
		out.Calls = append(out.Calls, model.FunctionCall{CallID: block.ID, Name: block.Name, Arguments: args})
	}
	return out
}

func NewToolsFromDeclarations(decls []model.ToolDeclaration) []anthropic.ToolUnionParam {
	var tools []anthropic.ToolUnionParam
	for _, d := range decls {
		required, _ := d.Parameters["required"].([]string)
		tool := anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties:  d.Parameters["properties"],
				Required:    required,
				ExtraFields: map[string]any{"additionalProperties": false},
			},
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools
}
