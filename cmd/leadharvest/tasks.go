package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/leadharvest/internal/app"
	"github.com/ternarybob/leadharvest/internal/models"
)

var waitResult bool

var fetchCmd = &cobra.Command{
	Use:   "fetch [lead-id...]",
	Short: "Extract the full record of one or more leads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTasks(cmd, func(ctx context.Context, a *app.App) ([]models.TaskTicket, error) {
			tickets := make([]models.TaskTicket, 0, len(args))
			for _, leadID := range args {
				ticket, err := a.LeadService.FetchRecord(ctx, leadID)
				if err != nil {
					return tickets, err
				}
				tickets = append(tickets, ticket)
			}
			return tickets, nil
		})
	},
}

var channelsCmd = &cobra.Command{
	Use:   "channels [lead-id]",
	Short: "List the compose channels and chat contacts of a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTasks(cmd, func(ctx context.Context, a *app.App) ([]models.TaskTicket, error) {
			ticket, err := a.LeadService.FetchChannels(ctx, args[0])
			if err != nil {
				return nil, err
			}
			return []models.TaskTicket{ticket}, nil
		})
	},
}

var sendRequest models.SendRequest

var sendCmd = &cobra.Command{
	Use:   "send [lead-id]",
	Short: "Post a message on a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := sendRequest
		req.LeadID = args[0]
		return runTasks(cmd, func(ctx context.Context, a *app.App) ([]models.TaskTicket, error) {
			ticket, err := a.LeadService.SendMessage(ctx, req)
			if err != nil {
				return nil, err
			}
			return []models.TaskTicket{ticket}, nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show the recorded lifecycle of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		record, err := a.LeadService.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(record)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{fetchCmd, channelsCmd, sendCmd} {
		cmd.Flags().BoolVar(&waitResult, "wait", true, "Wait for each task and print its result")
	}

	sendCmd.Flags().StringVarP(&sendRequest.Text, "message", "m", "", "Message text")
	sendCmd.Flags().StringVarP(&sendRequest.Channel, "type", "t", models.ChannelNote, "Channel: chat, email or note")
	sendCmd.Flags().StringVar(&sendRequest.ContactID, "chat-id", "", "External chat contact id (chat channel)")
	sendCmd.Flags().StringVar(&sendRequest.Thread, "subject", "", "Subject line (email channel)")
}

type taskOutput struct {
	TaskID string `json:"taskId"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// runTasks submits tasks and, unless --wait=false, prints each outcome. Queued tasks
// always run to completion before the process exits.
func runTasks(cmd *cobra.Command, submit func(ctx context.Context, a *app.App) ([]models.TaskTicket, error)) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tickets, err := submit(ctx, a)
	if err != nil {
		return err
	}

	if !waitResult {
		return printJSON(tickets)
	}

	failed := 0
	outputs := make([]taskOutput, 0, len(tickets))
	for _, ticket := range tickets {
		out := taskOutput{TaskID: ticket.TaskID}
		result, err := a.LeadService.Wait(ctx, ticket.TaskID)
		if err != nil {
			out.Error = err.Error()
			failed++
		} else {
			out.Result = result
		}
		outputs = append(outputs, out)
	}

	if err := printJSON(outputs); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(tickets))
	}
	return nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
