package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/fiqh-assistant/internal/adapters/audio"
	"github.com/PabloGalante/fiqh-assistant/internal/app/speech"
	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

var (
	speakSession string
	speakMessage string
	speakVoice   string
	speakOut     string
)

var speakCmd = &cobra.Command{
	Use:   "speak",
	Short: "Render the spoken answer of a message to a WAV file",
	Args:  cobra.NoArgs,
	RunE:  runSpeak,
}

func init() {
	speakCmd.Flags().StringVar(&speakSession, "session", "", "session holding the message (defaults to the active one)")
	speakCmd.Flags().StringVar(&speakMessage, "message", "", "message id")
	speakCmd.Flags().StringVar(&speakVoice, "voice", "", "Ayesha or Ahmed (defaults to the stored preference)")
	speakCmd.Flags().StringVar(&speakOut, "out", "answer.wav", "output file")
	_ = speakCmd.MarkFlagRequired("message")
}

func runSpeak(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, cliLogOutput())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.shutdown()) }()

	if speakSession != "" {
		if err := a.svc.SwitchSession(ctx, domain.SessionID(speakSession)); err != nil {
			return fmt.Errorf("session %s: %w", speakSession, err)
		}
	}
	msg, err := a.svc.Message(domain.MessageID(speakMessage))
	if err != nil {
		return fmt.Errorf("message %s: %w", speakMessage, err)
	}
	voice := a.svc.Voice()
	if speakVoice != "" {
		voice = domain.ParseVoice(speakVoice)
	}

	track := audio.NewTimeline()
	sched := speech.NewScheduler(a.synth, func() (speech.Output, error) { return track, nil })
	if err := sched.Play(ctx, speech.SpeakableText(msg.Content), voice); err != nil {
		return err
	}

	buf := track.Render()
	f, err := os.Create(speakOut)
	if err != nil {
		return err
	}
	if err := audio.WriteWAV(f, buf); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", speakOut, buf.Duration().Round(10*time.Millisecond))
	return nil
}
