package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/intake/internal/questionnaire"
	"github.com/kalambet/intake/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Sessions *session.Registry
	Configs  *ConfigCache
}

// NewMCPServer creates an MCP server that lets an assistant walk a user
// through the questionnaire.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"intake",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("intake: fill the farm questionnaire section by section, then read the matched aid programs."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("start_questionnaire",
			mcp.WithDescription("Start a new questionnaire session and return its first section."),
		),
		mcpStartQuestionnaire(deps),
	)

	s.AddTool(
		mcp.NewTool("answer_question",
			mcp.WithDescription("Record the answer to one question of a session. Numbers, booleans and lists may be given as JSON; multiselect answers also accept a comma-separated list."),
			mcp.WithString("session_id", mcp.Description("Session id returned by start_questionnaire"), mcp.Required()),
			mcp.WithString("question_id", mcp.Description("Question id"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Answer value; empty clears the answer"), mcp.Required()),
		),
		mcpAnswerQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("next_section",
			mcp.WithDescription("Validate the current section and move forward. From the last section the profile is submitted and the matching result returned."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpNextSection(deps),
	)

	s.AddTool(
		mcp.NewTool("previous_section",
			mcp.WithDescription("Go back one section without validating."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpPreviousSection(deps),
	)

	s.AddTool(
		mcp.NewTool("get_session",
			mcp.WithDescription("Return the current section, answers, errors and result of a session."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpGetSession(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"questionnaire://config",
			"Questionnaire",
			mcp.WithResourceDescription("The loaded questionnaire document"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceQuestionnaire(deps),
	)

	return s
}

func mcpStartQuestionnaire(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cfg, err := deps.Configs.Get(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("loading questionnaire: %v", err)), nil
		}
		s := deps.Sessions.Create(cfg)
		return mcpJSON(newSessionView(s.State())), nil
	}
}

func mcpAnswerQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, res := mcpSession(deps, req)
		if res != nil {
			return res, nil
		}
		qid, err := req.RequireString("question_id")
		if err != nil {
			return mcpError("question_id is required"), nil
		}
		q, ok := s.Config().Question(qid)
		if !ok {
			return mcpError(fmt.Sprintf("unknown question %q", qid)), nil
		}

		v, err := answerFromArg(q, req.GetArguments()["value"])
		if err != nil {
			return mcpError(fmt.Sprintf("invalid value: %v", err)), nil
		}
		if err := s.SetAnswer(qid, v); err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(newSessionView(s.State())), nil
	}
}

// answerFromArg converts a tool argument into an answer for q. String
// arguments are read as JSON when they parse, so "42" answers a number
// question and "true" a yes/no radio.
func answerFromArg(q questionnaire.Question, raw any) (questionnaire.Value, error) {
	str, ok := raw.(string)
	if !ok {
		return questionnaire.ValueOf(raw)
	}
	if q.Type == questionnaire.TypeText {
		return questionnaire.Text(str), nil
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return questionnaire.Value{}, nil
	}

	var decoded questionnaire.Value
	if err := json.Unmarshal([]byte(str), &decoded); err != nil {
		decoded = questionnaire.Text(str)
	}
	if q.Type == questionnaire.TypeMultiSelect && decoded.Kind() != questionnaire.KindSet {
		parts := strings.Split(decoded.String(), ",")
		items := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		return questionnaire.Set(items...), nil
	}
	return decoded, nil
}

func mcpNextSection(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, res := mcpSession(deps, req)
		if res != nil {
			return res, nil
		}
		step, err := s.Next(ctx)
		var verr *questionnaire.ValidationError
		if errors.As(err, &verr) {
			b, _ := json.Marshal(map[string]any{
				"message": "the section has invalid answers",
				"errors":  verr.Fields,
			})
			return mcpError(string(b)), nil
		}
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(stepResponse{Step: step.String(), Session: newSessionView(s.State())}), nil
	}
}

func mcpPreviousSection(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, res := mcpSession(deps, req)
		if res != nil {
			return res, nil
		}
		if err := s.Previous(); err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(newSessionView(s.State())), nil
	}
}

func mcpGetSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, res := mcpSession(deps, req)
		if res != nil {
			return res, nil
		}
		return mcpJSON(newSessionView(s.State())), nil
	}
}

func mcpResourceQuestionnaire(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		cfg, err := deps.Configs.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load questionnaire: %w", err)
		}

		b, err := json.Marshal(newQuestionnaireView(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal questionnaire: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// mcpSession resolves the session_id argument. A non-nil result is the error
// to return to the client.
func mcpSession(deps MCPDeps, req mcp.CallToolRequest) (*session.Session, *mcp.CallToolResult) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return nil, mcpError("session_id is required")
	}
	s, err := deps.Sessions.Get(id)
	if err != nil {
		return nil, mcpError(fmt.Sprintf("session %q not found", id))
	}
	return s, nil
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal response: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
