package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
	"github.com/yungbote/crawlshastra-backend/internal/session"
)

func printThreads(out io.Writer, threads []session.Thread, activeID string) {
	if len(threads) == 0 {
		fmt.Fprintln(out, "No threads.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, th := range threads {
		mark := " "
		if th.ID == activeID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, th.ID, th.State, th.UpdatedAt.Local().Format(time.DateTime), titleOf(th))
	}
	_ = tw.Flush()
}

func printThread(out io.Writer, th session.Thread) {
	fmt.Fprintf(out, "%s  %s\n", th.ID, titleOf(th))
	for _, m := range th.Messages {
		fmt.Fprintf(out, "[%d %s] %s\n", m.MessageID, m.Sender, m.Text)
		printSources(out, m.Sources)
	}
}

// printReply prints the last message of th, which after a send is the
// assistant's reply.
func printReply(out io.Writer, th session.Thread) {
	if len(th.Messages) == 0 {
		return
	}
	m := th.Messages[len(th.Messages)-1]
	fmt.Fprintln(out, m.Text)
	printSources(out, m.Sources)
}

func printSources(out io.Writer, sources []chat.Source) {
	if len(sources) == 0 {
		return
	}
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Source)
	}
	fmt.Fprintf(out, "  sources: %s\n", strings.Join(names, ", "))
}

func titleOf(th session.Thread) string {
	if th.Title == nil || *th.Title == "" {
		return "(untitled)"
	}
	return *th.Title
}
