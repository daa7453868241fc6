package openaimodel

import (
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"
	"github.com/sealor/pharmacy-agent/pkg/history"
	"github.com/sealor/pharmacy-agent/pkg/model"
)

// NewInputFromItems maps runtime history items onto Responses API input items.
// Opaque items must hold a responses.ResponseInputItemUnionParam.
func NewInputFromItems(items []history.Item) responses.ResponseInputParam {
	var input responses.ResponseInputParam
	for _, item := range items {
		switch item.Kind {
		case history.KindMessage:
			role := responses.EasyInputMessageRoleUser
			if item.Role == history.RoleAssistant {
				role = responses.EasyInputMessageRoleAssistant
			}
			input = append(input, responses.ResponseInputItemParamOfMessage(item.Content, role))
		case history.KindFunctionCall:
			input = append(input, responses.ResponseInputItemParamOfFunctionCall(item.Arguments, item.CallID, item.Name))
		case history.KindFunctionCallOutput:
			input = append(input, responses.ResponseInputItemParamOfFunctionCallOutput(item.CallID, item.Output))
		case history.KindOpaque:
			if p, ok := item.Raw.(responses.ResponseInputItemUnionParam); ok {
				input = append(input, p)
			}
		}
	}
	return input
}

// NewResponseFromOpenAI keeps every output item in order so it can be fed back verbatim.
func NewResponseFromOpenAI(resp *responses.Response) *model.Response {
	out := &model.Response{ID: resp.ID}
	for _, o := range resp.Output {
		switch o.Type {
		case "message":
			m := o.AsMessage()
			p := m.ToParam()
			item := history.OpaqueItem(responses.ResponseInputItemUnionParam{OfOutputMessage: &p})
			item.Role = history.RoleAssistant
			item.Content = messageText(m)
			out.Items = append(out.Items, item)
		case "function_call":
			fc := o.AsFunctionCall()
			out.Items = append(out.Items, history.FunctionCallItem(fc.CallID, fc.Name, fc.Arguments))
			out.Calls = append(out.Calls, model.FunctionCall{CallID: fc.CallID, Name: fc.Name, Arguments: fc.Arguments})
		case "reasoning":
			p := o.AsReasoning().ToParam()
			out.Items = append(out.Items, history.OpaqueItem(responses.ResponseInputItemUnionParam{OfReasoning: &p}))
		}
	}
	return out
}

func messageText(m responses.ResponseOutputMessage) string {
	var text string
	for _, c := range m.Content {
		switch c.Type {
		case "output_text":
			text += c.Text
		case "refusal":
			text += c.Refusal
		}
	}
	return text
}

func NewToolsFromDeclarations(decls []model.ToolDeclaration) []responses.ToolUnionParam {
	var tools []responses.ToolUnionParam
	for _, d := range decls {
		tool := responses.ToolParamOfFunction(d.Name, d.Parameters, false)
		tool.OfFunction.Description = openai.String(d.Description)
		tools = append(tools, tool)
	}
	return tools
}
