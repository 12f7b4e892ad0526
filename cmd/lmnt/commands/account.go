package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lmnt-com/lmnt-go/pkg/cli"
	"github.com/lmnt-com/lmnt-go/pkg/lmnt"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show plan and usage",
	Long: `Show the account's plan and usage in the current billing period.

Examples:
  lmnt account
  lmnt account --json -q '.usage.characters'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := getContext()
		if err != nil {
			return err
		}
		client, err := createClient(ctx)
		if err != nil {
			return err
		}
		reqCtx, cancel := requestContext(ctx, 30*time.Second)
		defer cancel()

		account, err := client.Account.Get(reqCtx)
		if err != nil {
			return fmt.Errorf("get account failed: %w", err)
		}
		return outputTable(cmd, accountTable{account})
	},
}

type accountTable struct{ *lmnt.Account }

func (a accountTable) Table() cli.Table {
	p, u := a.Plan, a.Usage
	rows := [][]string{
		{"plan", p.Type},
		{"characters", fmt.Sprintf("%d / %d", u.Characters, p.CharacterLimit)},
		{"commercial use", fmt.Sprint(p.CommercialUseAllowed)},
		{"professional voices", limitOf(u.ProfessionalVoices, p.ProfessionalVoiceLimit)},
	}
	if u.InstantVoices != nil {
		rows = append(rows, []string{"instant voices", limitOf(*u.InstantVoices, p.InstantVoiceLimit)})
	}
	return cli.Table{Headers: []string{"FIELD", "VALUE"}, Rows: rows}
}

func limitOf(used int, limit *int) string {
	if limit == nil {
		return fmt.Sprintf("%d", used)
	}
	return fmt.Sprintf("%d / %d", used, *limit)
}
