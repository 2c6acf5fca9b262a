package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vseti/vseti-chat/internal/proto"
)

var (
	smokeAddr         string
	smokeToken        string
	smokeConversation int64
	smokeText         string
	smokeTimeout      time.Duration
)

// smokeCmd is a websocket client that exercises a running server.
var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Authenticate against a running server, list conversations and send a message",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), smokeTimeout)
		defer cancel()
		return runSmoke(ctx, cmd)
	},
}

func init() {
	rootCmd.AddCommand(smokeCmd)
	smokeCmd.Flags().StringVar(&smokeAddr, "addr", "ws://localhost:8080/ws", "websocket address")
	smokeCmd.Flags().StringVar(&smokeToken, "token", "", "identity token (from /api/login)")
	smokeCmd.Flags().Int64Var(&smokeConversation, "conversation", 0, "conversation to send to; skipped when 0")
	smokeCmd.Flags().StringVar(&smokeText, "text", "hello from smoke test", "message text to send")
	smokeCmd.Flags().DurationVar(&smokeTimeout, "timeout", 5*time.Second, "total timeout for the run")
	_ = smokeCmd.MarkFlagRequired("token")
}

func runSmoke(ctx context.Context, cmd *cobra.Command) error {
	conn, _, err := websocket.Dial(ctx, smokeAddr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		var raw json.RawMessage
		if data != nil {
			b, err := json.Marshal(data)
			if err != nil {
				return err
			}
			raw = b
		}
		return wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw})
	}
	await := func(event string) (proto.Outbound, error) {
		for {
			var out struct {
				proto.Outbound
				Data json.RawMessage `json:"data"`
			}
			if err := wsjson.Read(ctx, conn, &out); err != nil {
				return proto.Outbound{}, fmt.Errorf("waiting for %s: %w", event, err)
			}
			cmd.Printf("<- %s %s %s\n", out.Type, out.Event, out.Data)
			if out.Error != nil {
				return out.Outbound, fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Msg)
			}
			if out.Event == event {
				return out.Outbound, nil
			}
		}
	}

	if err := send(proto.InboundTypeAuth, proto.AuthData{Token: smokeToken}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	if _, err := await(proto.EventAuthSuccess); err != nil {
		return err
	}

	if err := send(proto.InboundTypeGetConversations, nil); err != nil {
		return fmt.Errorf("send get_conversations: %w", err)
	}
	if _, err := await(proto.EventConversationsList); err != nil {
		return err
	}

	if smokeConversation == 0 {
		return nil
	}
	if err := send(proto.InboundTypeSendMessage, proto.SendMessageData{ConversationID: smokeConversation, Content: smokeText}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	_, err = await(proto.EventNewMessage)
	return err
}
