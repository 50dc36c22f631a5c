// Command office-watch follows a meeting from the terminal with the same pollers the web
// client uses. It prints every snapshot that differs from the previous one.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/config"
	"github.com/md-rashed-zaman/advisoryoffice/libs/livesync"
	"github.com/md-rashed-zaman/advisoryoffice/libs/runtime"
)

type closer interface{ Close() }

func main() {
	config.Load()
	var (
		baseURL      = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "gateway base url")
		meetingID    = flag.String("meeting", config.String("MEETING_ID", ""), "meeting to follow")
		bookingID    = flag.String("booking", config.String("BOOKING_ID", ""), "booking whose meeting to follow")
		entryID      = flag.String("entry", config.String("ENTRY_ID", ""), "own waiting-room entry to follow")
		adminToken   = flag.String("admin-token", config.String("ADMIN_TOKEN", ""), "admin session token")
		bookingToken = flag.String("booking-token", config.String("BOOKING_TOKEN", ""), "guest booking token")
		panels       = flag.String("panels", config.String("PANELS", "chat,files"), "comma separated: chat,files,queue")
		verbose      = flag.Bool("v", false, "log poll failures")
	)
	flag.Parse()

	if strings.TrimSpace(*meetingID) == "" && strings.TrimSpace(*bookingID) == "" && strings.TrimSpace(*entryID) == "" {
		fatal("-meeting, -booking or -entry is required")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = runtime.NewLogger("office-watch")
	}

	client := livesync.NewClient(*baseURL,
		livesync.WithBearer(*adminToken),
		livesync.WithBookingToken(*bookingToken),
	)
	out := &printer{w: os.Stdout, last: map[string]string{}}

	ctx, stop := runtime.SignalContext()
	defer stop()

	if *meetingID == "" && *bookingID != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		m, err := client.MeetingForBooking(lookupCtx, *bookingID)
		cancel()
		if err != nil {
			fatal("find meeting for booking: " + err.Error())
		}
		*meetingID = m.ID
		fmt.Fprintf(os.Stdout, "following meeting %s\n", m.ID)
	}

	var pollers []closer
	start := func(p interface {
		closer
		Start(context.Context) error
	}) {
		if err := p.Start(ctx); err != nil {
			fatal(err.Error())
		}
		pollers = append(pollers, p)
	}

	if *meetingID != "" {
		for _, panel := range strings.Split(*panels, ",") {
			switch strings.TrimSpace(panel) {
			case "chat":
				start(client.ChatPoller(*meetingID, out.chat, logger))
			case "files":
				start(client.FilesPoller(*meetingID, out.files, logger))
			case "queue":
				start(client.QueuePoller(*meetingID, out.queue, logger))
			case "":
			default:
				fatal("unknown panel " + panel)
			}
		}
	}
	if *entryID != "" {
		// the entry poller stops itself once the host decided
		var entry *livesync.Poller[livesync.WaitingRoomEntry]
		entry = client.EntryPoller(*entryID, func(e livesync.WaitingRoomEntry) {
			out.entry(e)
			if resolved(e) {
				entry.Close()
			}
		}, logger)
		start(entry)
	}

	<-ctx.Done()
	for _, p := range pollers {
		p.Close()
	}
}

// printer renders snapshots. Pollers call it from their own goroutines.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	last map[string]string
}

func (p *printer) emit(panel string, lines []string) {
	text := strings.Join(lines, "\n")
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.last[panel]; ok && prev == text {
		return
	}
	p.last[panel] = text
	fmt.Fprintf(p.w, "== %s @ %s (%d)\n", panel, time.Now().Format(time.TimeOnly), len(lines))
	for _, l := range lines {
		fmt.Fprintln(p.w, "  "+l)
	}
}

func (p *printer) chat(list []livesync.ChatMessage) {
	lines := make([]string, 0, len(list))
	for _, m := range list {
		lines = append(lines, fmt.Sprintf("%s [%s] %s: %s", m.SentAt.Local().Format(time.TimeOnly), m.SenderRole, m.SenderName, m.Message))
	}
	p.emit("chat", lines)
}

func (p *printer) files(list []livesync.SharedFile) {
	lines := make([]string, 0, len(list))
	for _, f := range list {
		lines = append(lines, fmt.Sprintf("%s %s (%s) by %s -> %s", f.UploadedAt.Local().Format(time.TimeOnly), f.FileName, f.MimeType, f.UploadedBy, f.FileURL))
	}
	p.emit("files", lines)
}

func (p *printer) queue(list []livesync.WaitingRoomEntry) {
	lines := make([]string, 0, len(list))
	for _, e := range list {
		lines = append(lines, fmt.Sprintf("%s %s <%s> waiting since %s", e.ID, e.UserName, e.UserEmail, e.JoinRequestedAt.Local().Format(time.TimeOnly)))
	}
	p.emit("queue", lines)
}

func (p *printer) entry(e livesync.WaitingRoomEntry) {
	line := fmt.Sprintf("%s %s: %s", e.ID, e.UserName, e.Status)
	if e.ResolvedAt != nil {
		line += " at " + e.ResolvedAt.Local().Format(time.TimeOnly)
	}
	p.emit("entry", []string{line})
}

func resolved(e livesync.WaitingRoomEntry) bool {
	return e.Status == "admitted" || e.Status == "rejected"
}

func fatal(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
