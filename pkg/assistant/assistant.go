// Package assistant layers a conversational reply on top of the
// plan/preview/execute pipeline. The pipeline runs first and its outcome is
// handed to the language model as context; the model only phrases the reply.
package assistant

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/odvcencio/deskpilot/pkg/action"
	"github.com/odvcencio/deskpilot/pkg/config"
	"github.com/odvcencio/deskpilot/pkg/errors"
	"github.com/odvcencio/deskpilot/pkg/executor"
	"github.com/odvcencio/deskpilot/pkg/llm"
	"github.com/odvcencio/deskpilot/pkg/logging"
	"github.com/odvcencio/deskpilot/pkg/planner"
)

// DefaultName is the persona used when the client does not pick one.
const DefaultName = "小T"

const chatTemperature = 0.85

// Chatter runs one chat completion. Satisfied by *llm.Client.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// Request is one assistant turn from the client.
type Request struct {
	Text          string        `json:"text"`
	History       []llm.Message `json:"history"`
	AssistantName string        `json:"assistant_name"`
}

// Reply carries the phrased answer plus the raw pipeline outcome so the
// client can render previews and results alongside the conversation.
type Reply struct {
	Reply    string             `json:"reply"`
	Actions  []action.Envelope  `json:"actions"`
	Preview  *executor.Preview  `json:"preview"`
	Execute  *executor.Response `json:"execute"`
	Executed bool               `json:"executed"`
}

// toolSummary is the machine-readable pipeline outcome passed to the model.
type toolSummary struct {
	Input     string             `json:"input"`
	PlanOK    bool               `json:"plan_ok"`
	PlanError string             `json:"plan_error,omitempty"`
	Actions   []action.Envelope  `json:"actions"`
	Preview   *executor.Preview  `json:"preview"`
	Execute   *executor.Response `json:"execute"`
	Executed  bool               `json:"executed"`
}

// Assistant wires the planner pipeline to a language model.
type Assistant struct {
	chat Chatter
	exec *executor.Executor
	log  *logging.Logger
}

// New builds an assistant over the given model client and executor.
func New(chat Chatter, exec *executor.Executor, log *logging.Logger) *Assistant {
	return &Assistant{chat: chat, exec: exec, log: log}
}

// Respond runs the pipeline for one instruction and phrases the outcome.
// Low-risk plans execute immediately; anything needing confirmation is left
// for the client to confirm through the execute endpoint.
func (a *Assistant) Respond(ctx context.Context, rules *config.Rules, req Request) (*Reply, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty instruction").
			WithUserMessage("请输入指令")
	}
	name := req.AssistantName
	if name == "" {
		name = DefaultName
	}

	summary := toolSummary{Input: text, Actions: []action.Envelope{}}
	reply := &Reply{Actions: []action.Envelope{}}

	actions, planErr := planner.Plan(rules, text)
	if planErr != nil {
		summary.PlanError = userMessage(planErr)
	} else {
		summary.PlanOK = true
		summary.Actions = action.Envelopes(actions)
		reply.Actions = summary.Actions

		preview, err := a.exec.Preview(actions)
		if err != nil {
			summary.PlanOK = false
			summary.PlanError = userMessage(err)
		} else {
			summary.Preview = preview
			reply.Preview = preview
			if !preview.RequiresConfirm {
				resp, err := a.exec.Execute(actions, true)
				if err != nil {
					summary.PlanError = userMessage(err)
				} else {
					summary.Execute = resp
					summary.Executed = resp.OK
					reply.Execute = resp
					reply.Executed = resp.OK
				}
			}
		}
	}

	phrased, err := a.phrase(ctx, name, text, req.History, summary)
	if err != nil {
		return nil, err
	}
	reply.Reply = phrased

	if a.log != nil {
		a.log.Info(logging.CategoryAssistant, "responded", "", map[string]any{
			"plan_ok":  summary.PlanOK,
			"executed": summary.Executed,
			"actions":  len(summary.Actions),
		})
	}
	return reply, nil
}

func (a *Assistant) phrase(ctx context.Context, name, text string, history []llm.Message, summary toolSummary) (string, error) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "marshaling tool summary")
	}

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt(name)})
	messages = append(messages, history...)
	messages = append(messages,
		llm.Message{Role: "user", Content: text},
		llm.Message{Role: "system", Content: string(summaryJSON)},
	)

	raw, err := a.chat.Chat(ctx, messages, chatTemperature)
	if err != nil {
		return "", err
	}
	reply := Sanitize(raw, name)

	// The persona introduces itself exactly once, on the first reply.
	if isFirstReply(history) {
		intro := "我是你的桌面助手" + name
		if !strings.Contains(reply, intro) {
			reply = Sanitize("你好，"+intro+"。"+reply, name)
		}
	}
	return reply, nil
}

func systemPrompt(name string) string {
	return fmt.Sprintf("你是本地桌面助手，名字叫「%s」。风格：温暖、真诚、富有共情，语言更生动但保持简短。"+
		"允许2到3句短句，不要任何表情符号，不要换行，不要项目符号。"+
		"若执行成功，先确认再一句轻量关怀或追问；若未执行，先共情再给出原因与下一步建议。"+
		"若这是首次回复，请自然包含“我是你的桌面助手%s”。", name, name)
}

func isFirstReply(history []llm.Message) bool {
	for _, m := range history {
		if m.Role == "assistant" {
			return false
		}
	}
	return true
}

func userMessage(err error) string {
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		return coded.UserFacing()
	}
	return err.Error()
}
