package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/mission-control/internal/models"
	"github.com/example/mission-control/internal/orchestrator"
)

func newRunCmd() *cobra.Command {
	var planOnly, save, load bool
	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Plan and execute one mission in the terminal",
		Long: `Run plans the goal, auto-approves the plan and streams agent output
to stdout until the final report is ready. With --load the saved plan is
used instead of planning a new one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := strings.TrimSpace(strings.Join(args, " "))
			if goal == "" && !load {
				return errors.New("a goal is required unless --load is set")
			}
			ctx := cmd.Context()
			a, err := build(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			stop := context.AfterFunc(ctx, a.orch.Reset)
			defer stop()
			return runMission(ctx, a.orch, goal, runOptions{planOnly: planOnly, save: save, load: load}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&planOnly, "plan-only", false, "print the plan and stop before execution")
	cmd.Flags().BoolVar(&save, "save", false, "save the plan before executing it")
	cmd.Flags().BoolVar(&load, "load", false, "start from the saved plan")
	return cmd
}

type runOptions struct {
	planOnly, save, load bool
}

func runMission(ctx context.Context, orch *orchestrator.Orchestrator, goal string, opts runOptions, w io.Writer) error {
	if opts.load {
		if err := orch.LoadPlan(ctx); err != nil {
			return err
		}
	} else {
		if err := orch.SubmitGoal(ctx, goal); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", color.CyanString("Planning:"), goal)
		orch.Wait()
	}

	m := orch.Snapshot()
	if m.Phase != models.PhaseAwaitingApproval {
		return missionError(w, m)
	}
	printPlan(w, m)
	if opts.save {
		if err := orch.SavePlan(ctx); err != nil {
			return err
		}
		fmt.Fprintln(w, color.GreenString("Plan saved."))
	}
	if opts.planOnly {
		return nil
	}

	events, unsubscribe := orch.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		streamTokens(w, events)
	}()

	if err := orch.Approve(ctx); err != nil {
		unsubscribe()
		<-done
		return err
	}
	orch.Wait()
	unsubscribe()
	<-done

	m = orch.Snapshot()
	if m.Phase != models.PhaseFinished {
		return missionError(w, m)
	}
	fmt.Fprintf(w, "\n%s (%s)\n\n%s\n", color.New(color.Bold, color.FgGreen).Sprint("Final report"), m.Elapsed(time.Now()).Round(time.Millisecond), m.FinalReport)
	return nil
}

func printPlan(w io.Writer, m models.Mission) {
	fmt.Fprintln(w, color.New(color.Bold).Sprintf("Plan for %q", m.Goal))
	for _, t := range m.Tasks {
		deps := "none"
		if len(t.Dependencies) > 0 {
			deps = strings.Join(t.Dependencies, ", ")
		}
		fmt.Fprintf(w, "  %s %s %s\n      %s\n      after: %s\n",
			color.YellowString(t.ID), t.Title, color.MagentaString("["+t.Agent+"]"), t.Description, deps)
	}
}

// streamTokens prints coalesced output chunks as they arrive.
func streamTokens(w io.Writer, events <-chan []byte) {
	for b := range events {
		var ev struct {
			Event   string `json:"event"`
			Payload struct {
				Chunk string `json:"chunk"`
			} `json:"payload"`
		}
		if json.Unmarshal(b, &ev) != nil || ev.Event != "token" {
			continue
		}
		fmt.Fprint(w, ev.Payload.Chunk)
	}
}

func missionError(w io.Writer, m models.Mission) error {
	for _, e := range m.Log {
		if e.Type == models.LogError {
			fmt.Fprintln(w, color.RedString("error: ")+e.Content)
		}
	}
	if m.Error != "" {
		return errors.New(m.Error)
	}
	return fmt.Errorf("mission ended in phase %s", m.Phase)
}
