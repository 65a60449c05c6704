package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"modkeeper/internal/bus"
	"modkeeper/internal/confidence"
	"modkeeper/internal/corpus"
	"modkeeper/internal/intent"
	"modkeeper/internal/llm"
	"modkeeper/internal/moderation"
	"modkeeper/internal/orchestrator"
	"modkeeper/internal/override"
	"modkeeper/internal/review"
	"modkeeper/internal/sampler"
	"modkeeper/internal/store"
)

var (
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	replyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	flaggedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	approvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
)

// session holds the wired application.
type session struct {
	router  *orchestrator.Router
	store   *store.Store
	sampler *sampler.Sampler
	bus     *bus.Bus

	dataDir    string
	topic      string
	staleAfter time.Duration
}

func buildSession(ctx context.Context, log *zap.Logger) (*session, *time.Duration, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	genaiClient, err := newGenaiClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	client := llm.NewGenaiClient(genaiClient)

	b := bus.New(log)
	scorer := confidence.NewScorer(client, cfg.Models.Confidence,
		confidence.Method(cfg.Review.ConfidenceMethod))
	reviewer := review.NewAgentReviewer(client, cfg.Models.Review, scorer, log)
	st := store.New(b, reviewer, log)
	classifier := intent.NewClassifier(client, cfg.Models.Chat, log)
	extractor := override.NewExtractor(client, cfg.Models.Chat, b, log)
	router := orchestrator.New(classifier, st, extractor, client, cfg.Models.Chat, b, log,
		orchestrator.WithRecentTurns(cfg.Session.RecentTurns))

	bg := sampler.New(st, b, cfg.Data.Dir, cfg.Data.Topic, log,
		sampler.WithInterval(time.Duration(cfg.Sampler.IntervalSeconds)*time.Second),
		sampler.WithMaxBatch(cfg.Sampler.MaxBatch),
		sampler.WithProcessedLimit(cfg.Sampler.ProcessedLimit))

	stopTimeout := time.Duration(cfg.Sampler.StopTimeoutSeconds) * time.Second
	return &session{
		router:     router,
		store:      st,
		sampler:    bg,
		bus:        b,
		dataDir:    cfg.Data.Dir,
		topic:      cfg.Data.Topic,
		staleAfter: time.Duration(cfg.Session.StaleMinutes) * time.Minute,
	}, &stopTimeout, nil
}

// runSession is the interactive loop.
func runSession(ctx context.Context) error {
	s, stopTimeout, err := buildSession(ctx, logger)
	if err != nil {
		return err
	}

	// Surface background batches as they land.
	s.bus.Subscribe(bus.EventBackgroundPostsLoaded, func(payload any) {
		batch, ok := payload.(bus.BackgroundPostsLoaded)
		if !ok || batch.BatchSize == 0 {
			return
		}
		fmt.Println(infoStyle.Render(fmt.Sprintf(
			"[background] %s: %d approved, %d flagged",
			batch.Topic, len(batch.Approved), len(batch.Flagged))))
	})

	if !noSampler {
		s.sampler.Start(ctx)
		defer s.sampler.Stop(*stopTimeout)
	}

	fmt.Println(promptStyle.Render("modkeeper") + infoStyle.Render("  topic: "+s.topic))
	fmt.Println(infoStyle.Render(`type "select <post_id>" to pick a post, "session" for a recap, "exit" to quit`))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "exit" || line == "quit":
			return scanner.Err()
		case line == "session":
			printSessionSummary(s.router.ConversationSummary())
		case strings.HasPrefix(line, "select "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "select "))
			s.store.Select(id)
			if post := s.store.SelectedPost(); post != nil {
				fmt.Println(replyStyle.Render(store.DescribePost(*post, selectionStatus(s.store))))
			} else {
				fmt.Println(infoStyle.Render("selection cleared"))
			}
		default:
			if s.router.State().IsStale(s.staleAfter) {
				fmt.Println(infoStyle.Render("session was idle for a while; earlier context may no longer apply"))
			}
			provider := corpus.NewDirLoader(s.dataDir, s.topic, nil)
			reply := s.router.Handle(ctx, line, provider)
			printReply(reply)
		}
	}
	return scanner.Err()
}

func printSessionSummary(summary orchestrator.SessionSummary) {
	fmt.Println(replyStyle.Render(fmt.Sprintf("turns: %d", summary.TotalTurns)))
	if summary.CurrentIntent != "" {
		fmt.Println(replyStyle.Render("last intent: " + summary.CurrentIntent))
	}
	if summary.SelectedPostID != "" {
		fmt.Println(replyStyle.Render("selected: " + summary.SelectedPostID))
	}
	for _, rule := range summary.OverrideRules {
		fmt.Println(infoStyle.Render("  override: " + rule))
	}
	for _, action := range summary.RecentActions {
		fmt.Println(infoStyle.Render("  recent action: " + action))
	}
}

func selectionStatus(st *store.Store) string {
	if selCtx := st.SelectedContext(); selCtx != nil {
		return selCtx.Status
	}
	return "untracked"
}

func printReply(reply *orchestrator.Reply) {
	style := replyStyle
	if reply.Type == orchestrator.ReplyError {
		style = flaggedStyle
	}
	fmt.Println(style.Render(reply.Message))

	for _, post := range reply.Flagged {
		fmt.Println(flaggedStyle.Render("  flagged  " + post.ID + "  " + post.Title))
	}
	for _, post := range reply.Approved {
		fmt.Println(approvedStyle.Render("  approved " + post.ID + "  " + post.Title))
	}
}

// runBatchCheck reviews every post in the topic once and prints the
// verdicts.
func runBatchCheck(ctx context.Context) error {
	s, _, err := buildSession(ctx, logger)
	if err != nil {
		return err
	}

	provider := corpus.NewDirLoader(s.dataDir, s.topic, nil)
	approved, flagged, err := s.store.AutoReview(ctx, provider, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Checked %d posts in %s\n", len(approved)+len(flagged), s.topic)
	for _, post := range flagged {
		line := fmt.Sprintf("  flagged  %s  %s", post.ID, post.RuleID)
		if post.Confidence != nil {
			line += fmt.Sprintf("  confidence %.4f (%s)", *post.Confidence, post.ConfidenceLvl)
		}
		fmt.Println(flaggedStyle.Render(line))
		fmt.Println(infoStyle.Render("           " + moderation.Truncate(post.Explanation, 120)))
	}
	for _, post := range approved {
		fmt.Println(approvedStyle.Render("  approved " + post.ID + "  " + moderation.Truncate(post.Title, 80)))
	}
	return nil
}
