package chatcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/papercomputeco/veneer/pkg/cliui"
	"github.com/papercomputeco/veneer/pkg/conversation"
	"github.com/papercomputeco/veneer/pkg/llm"
)

const clearLine = "\r\033[K"

// printer renders conversation updates. In markdown mode a status line is
// shown while the answer streams and the final answer is rendered with
// glamour. Otherwise the text is written as it arrives.
type printer struct {
	out      io.Writer
	markdown bool

	// written is the content already printed for the current answer.
	written string
}

func newPrinter(out io.Writer, markdown bool) *printer {
	return &printer{out: out, markdown: markdown}
}

func (p *printer) handle(u conversation.Update) {
	switch {
	case u.State == conversation.AwaitingFirstByte:
		p.written = ""
		fmt.Fprint(p.out, assistantPrompt)
		if p.markdown {
			fmt.Fprint(p.out, cliui.DimStyle.Render("thinking…"))
		}

	case u.State == conversation.Streaming:
		if u.Message == nil {
			return
		}
		if p.markdown {
			status := "receiving…"
			if m := cliui.FormatMetrics(u.Message.Metrics); m != "" {
				status = m
			}
			fmt.Fprint(p.out, clearLine+assistantPrompt+cliui.DimStyle.Render(status))
			return
		}
		p.write(u.Message.Content)

	// Clear and Restore report Idle without a turn.
	case u.State.Terminal() && u.TurnID != "":
		p.finish(u)
	}
}

// write prints the part of content not yet shown. A snapshot that does not
// extend what is on screen is printed on a fresh line.
func (p *printer) write(content string) {
	if rest, ok := strings.CutPrefix(content, p.written); ok {
		fmt.Fprint(p.out, rest)
	} else {
		fmt.Fprint(p.out, "\n"+content)
	}
	p.written = content
}

func (p *printer) finish(u conversation.Update) {
	if p.markdown {
		fmt.Fprint(p.out, clearLine+assistantPrompt+"\n")
	}

	if msg := u.Message; msg != nil {
		switch {
		case msg.Notice:
			if p.written != "" {
				fmt.Fprintln(p.out)
			}
			fmt.Fprint(p.out, cliui.NoticeStyle.Render(msg.Content))
		case p.markdown:
			fmt.Fprint(p.out, p.render(msg.Content))
		default:
			p.write(msg.Content)
		}
	}
	fmt.Fprintln(p.out)

	if u.State == conversation.Failed && u.Err != nil {
		fmt.Fprintf(p.out, "  %s %v\n", cliui.FailMark, u.Err)
	}
	if u.Message != nil {
		p.metrics(u.Message)
	}
	p.written = ""
}

func (p *printer) render(content string) string {
	rendered, err := cliui.RenderMarkdown(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

func (p *printer) metrics(msg *llm.Message) {
	if line := cliui.FormatMetrics(msg.Metrics); line != "" {
		fmt.Fprintf(p.out, "  %s\n", cliui.DimStyle.Render(line))
	}
}
