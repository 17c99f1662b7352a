package mailtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mailpilot/mailpilot/internal/gmail"
	"github.com/mailpilot/mailpilot/internal/tools"
	"github.com/mailpilot/mailpilot/internal/tools/batch"
)

func sendEmailTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_send_email",
		Description: "Send an email. Sends are not retried, so a failure is never a duplicate.",
		Args: []tools.ArgSpec{
			{Name: "to", Type: tools.ArgStringOrArray, Required: true, Description: "Recipient address or array of addresses"},
			{Name: "subject", Type: tools.ArgString, Required: true, Description: "Subject line"},
			{Name: "body", Type: tools.ArgString, Required: true, Description: "Message body"},
			{Name: "html", Type: tools.ArgBoolean, Description: "Send the body as HTML (default plain text)"},
			{Name: "cc", Type: tools.ArgStringOrArray, Description: "CC address or array of addresses"},
			{Name: "bcc", Type: tools.ArgStringOrArray, Description: "BCC address or array of addresses"},
			{Name: "threadId", Type: tools.ArgString, Description: "Thread to reply into"},
			{Name: "inReplyTo", Type: tools.ArgString, Description: "Message-ID this message replies to"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			to, err := batch.ParseStringOrArray(args["to"], "to")
			if err != nil {
				return nil, tools.NewValidationError("to", err.Error())
			}
			req := &gmail.SendRequest{
				To:        strings.Join(to, ", "),
				Subject:   argString(args, "subject", ""),
				Body:      argString(args, "body", ""),
				HTML:      argBool(args, "html", false),
				ThreadID:  argString(args, "threadId", ""),
				InReplyTo: argString(args, "inReplyTo", ""),
			}
			if args["cc"] != nil {
				if req.Cc, err = batch.ParseStringOrArray(args["cc"], "cc"); err != nil {
					return nil, tools.NewValidationError("cc", err.Error())
				}
			}
			if args["bcc"] != nil {
				if req.Bcc, err = batch.ParseStringOrArray(args["bcc"], "bcc"); err != nil {
					return nil, tools.NewValidationError("bcc", err.Error())
				}
			}

			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			id, err := gw.Send(ctx, req)
			if err != nil {
				return nil, err
			}
			return &tools.Result{
				Structured: map[string]interface{}{"messageId": id},
				Text:       fmt.Sprintf("Sent %q to %s (message %s)", req.Subject, strings.Join(to, ", "), id),
			}, nil
		},
	}
}
