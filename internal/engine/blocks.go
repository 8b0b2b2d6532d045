package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/xela07ax/slack-approval-bot/internal/connectors"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

// Идентификаторы модалки: по ним разбирается view_submission.
const (
	ModalCallbackID    = "approval_modal_submit"
	ApproverBlockID    = "approver_block"
	ApproverActionID   = "approver_select_action"
	ReasonBlockID      = "request_text_block"
	ReasonActionID     = "request_text_action"
	actionsBlockPrefix = "approval_actions_"
)

const (
	textValidationFailed = "Sorry, something went wrong with your submission. Please ensure all fields are filled."
	textReservedApprover = "Sorry, <@%s> cannot approve requests. Please choose another approver."
	textRequesterBlocked = "Sorry, you are not allowed to submit approval requests. Please contact a workspace admin."

	placeholderRequest     = "Your request"
	placeholderUnextracted = "Your request (details couldn't be fully extracted)"
)

// decisionActionPattern — action_id кнопок решения.
var decisionActionPattern = regexp.MustCompile(`^(approve|reject)_request_`)

var fencePattern = regexp.MustCompile("(?s)```(.*?)```")

func buildRequestModal() slack.ModalViewRequest {
	approverSelect := slack.NewOptionsSelectBlockElement(
		slack.OptTypeUser,
		slack.NewTextBlockObject(slack.PlainTextType, "Select an approver", false, false),
		ApproverActionID,
	)

	reasonInput := slack.NewPlainTextInputBlockElement(nil, ReasonActionID)
	reasonInput.Multiline = true

	return slack.ModalViewRequest{
		Type:       slack.VTModal,
		CallbackID: ModalCallbackID,
		Title:      slack.NewTextBlockObject(slack.PlainTextType, "Request Approval", false, false),
		Submit:     slack.NewTextBlockObject(slack.PlainTextType, "Submit", false, false),
		Close:      slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Blocks: slack.Blocks{
			BlockSet: []slack.Block{
				slack.NewInputBlock(
					ApproverBlockID,
					slack.NewTextBlockObject(slack.PlainTextType, "Choose Approver", false, false),
					nil,
					approverSelect,
				),
				slack.NewInputBlock(
					ReasonBlockID,
					slack.NewTextBlockObject(slack.PlainTextType, "Reason for Approval", false, false),
					nil,
					reasonInput,
				),
			},
		},
	}
}

// approverMessageText — текст запроса; причина внутри ``` чтобы её можно было извлечь обратно.
func approverMessageText(requesterID, approverID, reason string) string {
	return fmt.Sprintf("Hi <@%s>! 👋\n\n<@%s> has requested your approval for:\n\n```%s```\n\nPlease review and respond below.",
		approverID, requesterID, reason)
}

// buildApproverMessage собирает интерактивное сообщение с двумя токенами решения.
func buildApproverMessage(requesterID, approverID, reason, ref string) (connectors.Message, error) {
	approveID, err := domain.EncodeDecisionToken(domain.DecisionApprove, ref)
	if err != nil {
		return connectors.Message{}, err
	}
	rejectID, err := domain.EncodeDecisionToken(domain.DecisionReject, ref)
	if err != nil {
		return connectors.Message{}, err
	}

	text := approverMessageText(requesterID, approverID, reason)

	approve := slack.NewButtonBlockElement(approveID, ref,
		slack.NewTextBlockObject(slack.PlainTextType, "Approve", true, false)).WithStyle(slack.StylePrimary)
	reject := slack.NewButtonBlockElement(rejectID, ref,
		slack.NewTextBlockObject(slack.PlainTextType, "Reject", true, false)).WithStyle(slack.StyleDanger)

	return connectors.Message{
		Channel: approverID,
		Text:    text,
		Blocks: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
			slack.NewActionBlock(actionsBlockPrefix+ref, approve, reject),
		},
	}, nil
}

// extractRequestText достаёт текст заявки из первого mrkdwn section блока.
func extractRequestText(blocks []slack.Block) string {
	for _, b := range blocks {
		section, ok := b.(*slack.SectionBlock)
		if !ok || section.Text == nil || section.Text.Type != slack.MarkdownType {
			continue
		}
		if section.Text.Text == "" {
			return placeholderRequest
		}
		m := fencePattern.FindStringSubmatch(section.Text.Text)
		if m == nil || m[1] == "" {
			return placeholderUnextracted
		}
		return quoteRequest(m[1])
	}
	return placeholderRequest
}

func quoteRequest(reason string) string {
	return "Your request:\n```" + strings.TrimSpace(reason) + "```"
}

func decisionNotificationText(requestText string, d domain.Decision, approverID string) string {
	return fmt.Sprintf("%s\n\nhas been *%s* by <@%s>.", requestText, d.Label(), approverID)
}

// resolvedBlocks убирает кнопки и добавляет статичную аннотацию.
func resolvedBlocks(original []slack.Block, annotation string) []slack.Block {
	out := make([]slack.Block, 0, len(original)+1)
	for _, b := range original {
		if b.BlockType() == slack.MBTAction {
			continue
		}
		out = append(out, b)
	}
	return append(out, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, annotation, false, false)))
}

func decisionAnnotation(d domain.Decision, requesterID string, at time.Time) string {
	return fmt.Sprintf("*%s* by you on %s. Requester <@%s> notified.", d.Label(), slackDate(at), requesterID)
}

// slackDate рендерится клиентом Slack в локальной зоне зрителя, fallback в серверном времени.
func slackDate(at time.Time) string {
	return fmt.Sprintf("<!date^%d^{date_short_pretty} at {time}|%s>", at.Unix(), at.Format("1/2/2006, 3:04:05 PM"))
}
