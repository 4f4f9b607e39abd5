package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/fiqh-assistant/internal/app/conversation"
	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

var (
	askSession  string
	askImage    string
	askThinking bool
	askLanguage string
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Ask a question and stream the answer to stdout",
	Long: `Ask a question and stream the answer to stdout.

Without --session a new session is started. Citations are printed after the
answer.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "continue an existing session")
	askCmd.Flags().StringVar(&askImage, "image", "", "attach an image file")
	askCmd.Flags().BoolVar(&askThinking, "thinking", false, "use the deep reasoning model")
	askCmd.Flags().StringVar(&askLanguage, "language", "", "answer language (en or ur)")
}

func runAsk(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	prompt := strings.Join(args, " ")

	var img *domain.Image
	if askImage != "" {
		if img, err = readImage(askImage); err != nil {
			return err
		}
	}
	if strings.TrimSpace(prompt) == "" && img == nil {
		return errors.New("a prompt or an --image is required")
	}

	a, err := newApp(ctx, cliLogOutput())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.shutdown()) }()

	if askLanguage != "" {
		a.svc.SetLanguage(ctx, domain.ParseLanguage(askLanguage))
	}
	if askSession != "" {
		if err := a.svc.SwitchSession(ctx, domain.SessionID(askSession)); err != nil {
			return fmt.Errorf("session %s: %w", askSession, err)
		}
	} else if err := a.svc.StartNewChat(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	reply, err := a.svc.Send(ctx, conversation.SendInput{
		Prompt:   prompt,
		Image:    img,
		Thinking: askThinking,
	}, func(c domain.Chunk) {
		fmt.Fprint(out, c.Text)
	})
	fmt.Fprintln(out)
	if err != nil {
		return errors.New(domain.GenerationFailedNotice)
	}

	if len(reply.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, src := range reply.Sources {
			fmt.Fprintf(out, "  - %s (%s)\n", src.Title, src.URI)
		}
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\nmessage: %s\n", a.svc.Snapshot().ActiveSessionID, reply.ID)
	return nil
}

func readImage(path string) (*domain.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return &domain.Image{Data: base64.StdEncoding.EncodeToString(raw), MimeType: mime}, nil
}
