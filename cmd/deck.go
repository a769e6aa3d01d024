package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"tapedeck/deck"
	"tapedeck/types"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// scaledClock runs the wall clock speed times faster
type scaledClock struct {
	base  *deck.WallClock
	speed float64
}

func (c scaledClock) Now() float64 {
	return c.base.Now() * c.speed
}

type deckOptions struct {
	offsets []string
	seek    float64
	speed   float64
	plan    bool
}

func newDeckCommand(ctx *commandContext) *cobra.Command {
	var opts deckOptions

	cmd := &cobra.Command{
		Use:   "deck <project>",
		Short: "Dry-run the tape deck mix of a project",
		Long: "Schedules every track of the project with its offset, then follows the " +
			"transport against the wall clock without producing sound.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := withTimeout(cmd)
			infos, err := ctx.client().Tracks(reqCtx, args[0])
			cancel()
			if err != nil {
				return projectError(args[0], err)
			}
			return runDeck(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), infos, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.offsets, "offset", nil, "Start offset as file=seconds (repeatable)")
	cmd.Flags().Float64Var(&opts.seek, "seek", 0, "Seconds into every track to start reading from")
	cmd.Flags().Float64Var(&opts.speed, "speed", 1, "Transport speed multiplier")
	cmd.Flags().BoolVar(&opts.plan, "plan", false, "Print the schedule without running the transport")
	return cmd
}

func parseOffsets(values []string) (map[string]float64, error) {
	offsets := make(map[string]float64, len(values))
	for _, v := range values {
		name, secs, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid offset %q: want file=seconds", v)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(secs), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q: %w", v, err)
		}
		offsets[strings.TrimSpace(name)] = f
	}
	return offsets, nil
}

// buildDeck loads every track with a known duration and applies offsets
func buildDeck(clock deck.Clock, infos []types.TrackInfo, offsets map[string]float64, warn io.Writer) (*deck.Deck, error) {
	tracks := make([]deck.Track, 0, len(infos))
	skipped := make(map[string]bool)
	for _, info := range infos {
		if info.DurationSeconds <= 0 {
			fmt.Fprintf(warn, "skipping %s: duration unknown\n", info.Filename)
			skipped[info.Filename] = true
			continue
		}
		tracks = append(tracks, deck.Track{Name: info.Filename, Duration: info.DurationSeconds})
	}
	if len(tracks) == 0 {
		return nil, errors.New("no playable tracks")
	}

	d := deck.New(clock, tracks)
	for i, track := range tracks {
		if secs, ok := offsets[track.Name]; ok {
			if err := d.SetOffset(i, secs); err != nil {
				return nil, err
			}
			delete(offsets, track.Name)
		}
	}
	unknown := make([]string, 0, len(offsets))
	for name := range offsets {
		if skipped[name] {
			fmt.Fprintf(warn, "ignoring offset for %s: duration unknown\n", name)
			continue
		}
		unknown = append(unknown, name)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("offset given for unknown track %s", strings.Join(unknown, ", "))
	}
	return d, nil
}

func printSchedule(w io.Writer, d *deck.Deck, seek float64) {
	rows := make([][]string, 0, len(d.Tracks()))
	for i, track := range d.Tracks() {
		s := track.From(seek)
		start := d.Offset(i)
		rows = append(rows, []string{
			track.Name,
			deck.FormatTime(start),
			deck.FormatTime(s),
			deck.FormatTime(start + track.Duration - s),
		})
	}
	printTable(w, scheduleColumns, rows)
}

func runDeck(ctx context.Context, out, errOut io.Writer, infos []types.TrackInfo, opts deckOptions) error {
	offsets, err := parseOffsets(opts.offsets)
	if err != nil {
		return err
	}
	if opts.speed <= 0 {
		return fmt.Errorf("speed must be positive, got %g", opts.speed)
	}

	clock := scaledClock{base: deck.NewWallClock(), speed: opts.speed}
	d, err := buildDeck(clock, infos, offsets, errOut)
	if err != nil {
		return err
	}

	printSchedule(out, d, opts.seek)
	if opts.plan {
		return nil
	}

	length := d.Timeline(opts.seek)
	started := clock.Now()
	for i := range d.Tracks() {
		if err := d.Play(i, opts.seek); err != nil {
			return err
		}
	}

	var bar *progressbar.ProgressBar
	if isTerminal(out) {
		bar = progressbar.NewOptions64(int64(length*1000),
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
	}

	finished := make([]bool, len(d.Tracks()))
	err = d.Run(ctx, deck.PollInterval, func(progress []deck.Progress) {
		position := clock.Now() - started
		if bar != nil {
			_ = bar.Set64(int64(math.Min(position, length) * 1000))
			bar.Describe(describeActive(progress))
			return
		}
		for _, p := range progress {
			if !p.Active && !finished[p.Index] {
				finished[p.Index] = true
				fmt.Fprintf(out, "%s %s finished\n", deck.FormatTime(position), p.Name)
			}
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Mix finished after %s\n", deck.FormatTime(length))
	return nil
}

func describeActive(progress []deck.Progress) string {
	parts := make([]string, 0, len(progress))
	for _, p := range progress {
		if p.Active {
			parts = append(parts, p.Name+" "+p.Label)
		}
	}
	return strings.Join(parts, "  ")
}
