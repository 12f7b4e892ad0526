package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lmnt-com/lmnt-go/pkg/cli"
	"github.com/lmnt-com/lmnt-go/pkg/lmnt"
)

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Voice management service",
	Long: `Voice management service.

List, inspect, create, update and delete voices. Listings are cached
locally so names can be used wherever a voice id is expected.`,
}

// voiceTable renders voices as a table.
type voiceTable []lmnt.Voice

func (v voiceTable) Table() cli.Table {
	t := cli.Table{Headers: []string{"ID", "NAME", "OWNER", "STATE", "TYPE", "GENDER", "STARRED"}}
	for _, voice := range v {
		starred := ""
		if voice.Starred != nil && *voice.Starred {
			starred = "*"
		}
		t.Rows = append(t.Rows, []string{
			voice.ID, voice.Name, string(voice.Owner), voice.State, string(voice.Type), voice.Gender, starred,
		})
	}
	return t
}

var (
	listOwner   string
	listStarred bool
	listCached  bool

	createEnhance     bool
	createDescription string
	createGender      string

	updateName        string
	updateDescription string
	updateGender      string
	updateStarred     bool
)

var voiceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available voices",
	Long: `List voices. A live listing refreshes the local cache; --cached reads
the cache without contacting the service.

Examples:
  lmnt voice list
  lmnt voice list --owner me --starred
  lmnt voice list --cached --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch lmnt.Owner(listOwner) {
		case "", lmnt.OwnerSystem, lmnt.OwnerMe, lmnt.OwnerAll:
		default:
			return fmt.Errorf("invalid --owner %q: want one of %s", listOwner, ownerNames)
		}
		ctx, err := getContext()
		if err != nil {
			return err
		}
		cache, closeCache, err := openVoiceCache()
		if err != nil {
			return err
		}
		defer closeCache()

		reqCtx, cancel := requestContext(ctx, 30*time.Second)
		defer cancel()

		var voices []lmnt.Voice
		if listCached {
			voices, err = cache.List(reqCtx)
			if err != nil {
				return err
			}
			if len(voices) == 0 {
				cli.PrintInfo("voice cache is empty or stale; run 'lmnt voice list' to refresh it")
			}
			voices = filterVoices(voices, lmnt.Owner(listOwner), listStarred)
			printVerbose("Read %d voices from cache", len(voices))
			return outputTable(cmd, voiceTable(voices))
		}

		client, err := createClient(ctx)
		if err != nil {
			return err
		}
		opts := &lmnt.ListVoicesOptions{Owner: lmnt.Owner(listOwner), Starred: listStarred}
		voices, err = client.Voices.List(reqCtx, opts)
		if err != nil {
			return fmt.Errorf("list voices failed: %w", err)
		}
		if listOwner == "" && !listStarred {
			err = cache.Put(reqCtx, voices)
		} else {
			err = upsertAll(reqCtx, voices, cache.Upsert)
		}
		if err != nil {
			cli.PrintWarning("failed to update voice cache: %v", err)
		}
		return outputTable(cmd, voiceTable(voices))
	},
}

func upsertAll(ctx context.Context, voices []lmnt.Voice, upsert func(context.Context, lmnt.Voice) error) error {
	for _, v := range voices {
		if err := upsert(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// filterVoices applies list filters to cached voices.
func filterVoices(voices []lmnt.Voice, owner lmnt.Owner, starred bool) []lmnt.Voice {
	var out []lmnt.Voice
	for _, v := range voices {
		if owner != "" && owner != lmnt.OwnerAll && v.Owner != owner {
			continue
		}
		if starred && (v.Starred == nil || !*v.Starred) {
			continue
		}
		out = append(out, v)
	}
	return out
}

var voiceGetCmd = &cobra.Command{
	Use:   "get <voice>",
	Short: "Get voice details",
	Args:  cobra.ExactArgs(1),
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

		voice, err := client.Voices.Get(reqCtx, resolveVoice(reqCtx, args[0]))
		if err != nil {
			return fmt.Errorf("get voice failed: %w", err)
		}
		return outputResult(cmd, voice)
	},
}

var voiceCreateCmd = &cobra.Command{
	Use:   "create <name> <audio-file>...",
	Short: "Create a voice from audio samples",
	Long: `Create an instant voice from 1 to 20 audio samples.

Examples:
  lmnt voice create "My Voice" sample1.wav sample2.wav --enhance
  lmnt voice create narrator take.mp3 --gender F --description "Calm narrator"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := getContext()
		if err != nil {
			return err
		}
		paths := args[1:]
		if len(paths) > lmnt.MaxVoiceFiles {
			return fmt.Errorf("at most %d audio files are allowed, got %d", lmnt.MaxVoiceFiles, len(paths))
		}

		req := &lmnt.CreateVoiceRequest{
			Name:        args[0],
			Enhance:     createEnhance,
			Description: createDescription,
			Gender:      createGender,
		}
		for _, p := range paths {
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			req.Files = append(req.Files, lmnt.VoiceFile{Filename: filepath.Base(p), Reader: f})
		}

		client, err := createClient(ctx)
		if err != nil {
			return err
		}
		reqCtx, cancel := requestContext(ctx, 5*time.Minute)
		defer cancel()

		printVerbose("Uploading %d samples", len(req.Files))
		voice, err := client.Voices.Create(reqCtx, req)
		if err != nil {
			return fmt.Errorf("create voice failed: %w", err)
		}
		cacheVoice(reqCtx, voice)
		cli.PrintSuccess("Voice %q created: %s", voice.Name, voice.ID)
		return outputResult(cmd, voice)
	},
}

var voiceUpdateCmd = &cobra.Command{
	Use:   "update <voice>",
	Short: "Update voice metadata",
	Long: `Update voice metadata. Only the given flags are changed. Voices owned
by others only accept --starred.

Examples:
  lmnt voice update v_123 --name "Narrator" --description "Calm"
  lmnt voice update leah --starred`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()
		req := &lmnt.UpdateVoiceRequest{}
		if fs.Changed("name") {
			req.Name = lmnt.Ptr(updateName)
		}
		if fs.Changed("description") {
			req.Description = lmnt.Ptr(updateDescription)
		}
		if fs.Changed("gender") {
			req.Gender = lmnt.Ptr(updateGender)
		}
		if fs.Changed("starred") {
			req.Starred = lmnt.Ptr(updateStarred)
		}
		if *req == (lmnt.UpdateVoiceRequest{}) {
			return fmt.Errorf("nothing to update: pass --name, --description, --gender or --starred")
		}
		return updateVoice(cmd, args[0], req)
	},
}

var voiceUnfreezeCmd = &cobra.Command{
	Use:   "unfreeze <voice>",
	Short: "Reactivate a voice frozen for inactivity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateVoice(cmd, args[0], &lmnt.UpdateVoiceRequest{Unfreeze: lmnt.Ptr(true)})
	},
}

func updateVoice(cmd *cobra.Command, nameOrID string, req *lmnt.UpdateVoiceRequest) error {
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

	voice, err := client.Voices.Update(reqCtx, resolveVoice(reqCtx, nameOrID), req)
	if err != nil {
		return fmt.Errorf("update voice failed: %w", err)
	}
	cacheVoice(reqCtx, voice)
	cli.PrintSuccess("Voice %s updated", voice.ID)
	return outputResult(cmd, voice)
}

var voiceDeleteCmd = &cobra.Command{
	Use:   "delete <voice>",
	Short: "Delete a voice you own",
	Args:  cobra.ExactArgs(1),
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

		id := resolveVoice(reqCtx, args[0])
		if err := client.Voices.Delete(reqCtx, id); err != nil {
			return fmt.Errorf("delete voice failed: %w", err)
		}
		if cache, closeCache, err := openVoiceCache(); err == nil {
			cache.Remove(reqCtx, id)
			closeCache()
		}
		cli.PrintSuccess("Voice %s deleted", id)
		return nil
	},
}

// cacheVoice records a voice returned by a mutation. Cache failures only
// warn.
func cacheVoice(ctx context.Context, v *lmnt.Voice) {
	cache, closeCache, err := openVoiceCache()
	if err != nil {
		cli.PrintWarning("%v", err)
		return
	}
	defer closeCache()
	if err := cache.Upsert(ctx, *v); err != nil {
		cli.PrintWarning("failed to cache voice %s: %v", v.ID, err)
	}
}

func init() {
	voiceListCmd.Flags().StringVar(&listOwner, "owner", "", "filter by owner: system, me, all")
	voiceListCmd.Flags().BoolVar(&listStarred, "starred", false, "only starred voices")
	voiceListCmd.Flags().BoolVar(&listCached, "cached", false, "read from the local cache")

	voiceCreateCmd.Flags().BoolVar(&createEnhance, "enhance", false, "clean up noisy samples")
	voiceCreateCmd.Flags().StringVar(&createDescription, "description", "", "voice description")
	voiceCreateCmd.Flags().StringVar(&createGender, "gender", "", "voice gender")

	voiceUpdateCmd.Flags().StringVar(&updateName, "name", "", "new display name")
	voiceUpdateCmd.Flags().StringVar(&updateDescription, "description", "", "new description")
	voiceUpdateCmd.Flags().StringVar(&updateGender, "gender", "", "new gender")
	voiceUpdateCmd.Flags().BoolVar(&updateStarred, "starred", false, "star or unstar (--starred=false)")

	voiceCmd.AddCommand(voiceListCmd)
	voiceCmd.AddCommand(voiceGetCmd)
	voiceCmd.AddCommand(voiceCreateCmd)
	voiceCmd.AddCommand(voiceUpdateCmd)
	voiceCmd.AddCommand(voiceUnfreezeCmd)
	voiceCmd.AddCommand(voiceDeleteCmd)
}

// ownerNames lists valid --owner values for errors and help.
var ownerNames = strings.Join([]string{string(lmnt.OwnerSystem), string(lmnt.OwnerMe), string(lmnt.OwnerAll)}, ", ")
