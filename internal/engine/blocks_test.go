package engine

import (
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

func TestBuildApproverMessage(t *testing.T) {
	msg, err := buildApproverMessage("U123", "U456", "Need budget sign-off", testRequestID)
	require.NoError(t, err)

	assert.Equal(t, "U456", msg.Channel)
	require.Len(t, msg.Blocks, 2)
	ab, ok := msg.Blocks[1].(*slack.ActionBlock)
	require.True(t, ok)
	require.Len(t, ab.Elements.ElementSet, 2)

	approve := ab.Elements.ElementSet[0].(*slack.ButtonBlockElement)
	reject := ab.Elements.ElementSet[1].(*slack.ButtonBlockElement)
	assert.Equal(t, "approve_request_"+testRequestID, approve.ActionID)
	assert.Equal(t, slack.StylePrimary, approve.Style)
	assert.Equal(t, "reject_request_"+testRequestID, reject.ActionID)
	assert.Equal(t, slack.StyleDanger, reject.Style)
	assert.True(t, decisionActionPattern.MatchString(approve.ActionID))
}

func TestBuildApproverMessageRejectsAmbiguousRef(t *testing.T) {
	_, err := buildApproverMessage("U_123", "U456", "x", "U_123")
	assert.ErrorIs(t, err, domain.ErrAmbiguousRef)
}

func TestExtractRequestText(t *testing.T) {
	section := func(typ, text string) slack.Block {
		return slack.NewSectionBlock(slack.NewTextBlockObject(typ, text, false, false), nil, nil)
	}

	testMap := map[string]struct {
		blocks []slack.Block
		want   string
	}{
		"fenced":             {blocks: []slack.Block{section(slack.MarkdownType, "a ```  b  ``` c")}, want: "Your request:\n```b```"},
		"first fence wins":   {blocks: []slack.Block{section(slack.MarkdownType, "```one``` and ```two```")}, want: "Your request:\n```one```"},
		"multiline":          {blocks: []slack.Block{section(slack.MarkdownType, "```line1\nline2```")}, want: "Your request:\n```line1\nline2```"},
		"blank fence":        {blocks: []slack.Block{section(slack.MarkdownType, "``` ```")}, want: "Your request:\n``````"},
		"empty fence":        {blocks: []slack.Block{section(slack.MarkdownType, "``````")}, want: placeholderUnextracted},
		"plain text section": {blocks: []slack.Block{section(slack.PlainTextType, "```x```")}, want: placeholderRequest},
		"nothing":            {want: placeholderRequest},
	}
	for name, tc := range testMap {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractRequestText(tc.blocks))
		})
	}
}

func TestResolvedBlocksDropsActions(t *testing.T) {
	msg, err := buildApproverMessage("U123", "U456", "x", testRequestID)
	require.NoError(t, err)

	out := resolvedBlocks(msg.Blocks, "*Approved* by you")

	require.Len(t, out, 2)
	assert.Equal(t, slack.MBTSection, out[0].BlockType())
	assert.Equal(t, slack.MBTContext, out[1].BlockType())
}

func TestSlackDate(t *testing.T) {
	at := time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "<!date^1772377445^{date_short_pretty} at {time}|3/1/2026, 3:04:05 PM>", slackDate(at))
}
