package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marianozunino/cloudshare/internal/expiration"
	"github.com/marianozunino/cloudshare/internal/gallery"
	"github.com/marianozunino/cloudshare/internal/identity"
	"github.com/marianozunino/cloudshare/internal/model"
	"github.com/marianozunino/cloudshare/internal/share"
	"github.com/marianozunino/cloudshare/internal/utils"
)

const defaultServer = "http://localhost:3002/"

var (
	baseURL string
	client  *Client
	out     io.Writer = os.Stdout
)

// cachedUser is the current-user blob kept next to the token
type cachedUser struct {
	UID       string `mapstructure:"uid"`
	Email     string `mapstructure:"email"`
	Name      string `mapstructure:"name"`
	Anonymous bool   `mapstructure:"anonymous"`
}

func saveConfig() error {
	err := viper.WriteConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		err = viper.SafeWriteConfig()
	}
	if err != nil {
		return fmt.Errorf("error saving configuration: %w", err)
	}
	return nil
}

// userFromToken decodes the token payload locally. The server is the only
// place the signature is checked.
func userFromToken(token string) (*cachedUser, *time.Time, error) {
	claims, err := identity.PeekClaims(token)
	if err != nil {
		return nil, nil, err
	}
	if claims.Subject == "" {
		return nil, nil, fmt.Errorf("token has no subject")
	}

	user := &cachedUser{
		UID:       claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		Anonymous: claims.Anonymous,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		return user, &exp, nil
	}
	return user, nil, nil
}

func printFiles(files []model.FileRecord) {
	if len(files) == 0 {
		fmt.Fprintln(out, "No files")
		return
	}
	for _, f := range files {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", f.PublicID, f.Name, utils.FormatFileSize(f.Size), utils.FormatTimestamp(f.CreatedAt))
	}
}

var rootCmd = &cobra.Command{
	Use:   "cloudshare-client",
	Short: "cloudshare client - manage your gallery and share links",
	Long: `cloudshare-client talks to a cloudshare server.

Quick start:
  cloudshare-client login <token>                    # Store your session token
  cloudshare-client gallery upload photo.jpg         # Add a file to the gallery
  cloudshare-client share link uploads/abc -e 24h    # Create a share link
  cloudshare-client share upload report.pdf -e 72    # Share a file for 72 hours
  cloudshare-client config set server https://cloudshare.example/`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		baseURL = viper.GetString("server")
		if baseURL == "" {
			baseURL = defaultServer
		}
		client = NewClient(baseURL, viper.GetString("token"))
		client.AdminToken = viper.GetString("admin-token")
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Store a session token issued by the identity provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := strings.TrimSpace(args[0])
		user, exp, err := userFromToken(token)
		if err != nil {
			return fmt.Errorf("invalid token: %w", err)
		}

		viper.Set("token", token)
		viper.Set("user", map[string]any{
			"uid":       user.UID,
			"email":     user.Email,
			"name":      user.Name,
			"anonymous": user.Anonymous,
		})
		if err := saveConfig(); err != nil {
			return err
		}

		fmt.Fprintf(out, "Logged in as %s\n", displayName(user))
		if exp != nil {
			fmt.Fprintf(out, "Session expires %s\n", utils.FormatTimestamp(*exp))
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		viper.Set("token", "")
		viper.Set("user", map[string]any{})
		if err := saveConfig(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Logged out")
		return nil
	},
}

func displayName(u *cachedUser) string {
	switch {
	case u.Anonymous:
		return "anonymous user " + u.UID
	case u.Email != "":
		return u.Email
	}
	return u.UID
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the cached current user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var user cachedUser
		if err := viper.UnmarshalKey("user", &user); err != nil || user.UID == "" {
			return fmt.Errorf("not logged in")
		}

		fmt.Fprintf(out, "%s (uid %s)\n", displayName(&user), user.UID)
		if _, exp, err := userFromToken(viper.GetString("token")); err == nil && exp != nil && exp.Before(time.Now()) {
			fmt.Fprintln(out, "Session expired, log in again")
		}
		return nil
	},
}

var galleryCmd = &cobra.Command{
	Use:     "gallery",
	Aliases: []string{"g"},
	Short:   "Manage gallery files",
}

var galleryListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List gallery files",
	Long: `List gallery files.

Filters: all, images, videos, documents
Sort:    newest, oldest, name, size`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filterFlag, _ := cmd.Flags().GetString("filter")
		sortFlag, _ := cmd.Flags().GetString("sort")

		filter, err := gallery.ParseFilter(filterFlag)
		if err != nil {
			return err
		}
		key, err := gallery.ParseSortKey(sortFlag)
		if err != nil {
			return err
		}

		files, err := client.ListFiles()
		if err != nil {
			return fmt.Errorf("error listing files: %w", err)
		}

		view := gallery.NewView(files)
		view.SetFilter(filter)
		view.SetSort(key)
		printFiles(view.Visible())
		return nil
	},
}

var galleryUploadCmd = &cobra.Command{
	Use:     "upload <file>...",
	Aliases: []string{"up"},
	Short:   "Upload files to the gallery",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			rec, err := client.UploadFile(path)
			if err != nil {
				fmt.Fprintf(out, "Failed to upload %s: %v\n", path, err)
				failed++
				continue
			}
			fmt.Fprintf(out, "Uploaded %s as %s (%s)\n", filepath.Base(path), rec.PublicID, utils.FormatFileSize(rec.Size))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(args))
		}
		return nil
	},
}

var galleryRemoveCmd = &cobra.Command{
	Use:     "rm [publicId]...",
	Aliases: []string{"delete"},
	Short:   "Delete gallery files",
	Long: `Delete gallery files by public id, or every file in a filter with --all.

Example: cloudshare-client gallery rm --all --filter videos`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		filterFlag, _ := cmd.Flags().GetString("filter")

		ids := args
		if all {
			filter, err := gallery.ParseFilter(filterFlag)
			if err != nil {
				return err
			}
			files, err := client.ListFiles()
			if err != nil {
				return fmt.Errorf("error listing files: %w", err)
			}
			view := gallery.NewView(files)
			view.SetFilter(filter)
			ids = nil
			for _, f := range view.Visible() {
				ids = append(ids, f.PublicID)
			}
		}

		sel := selectAll(ids)
		if sel.Len() == 0 {
			return fmt.Errorf("nothing selected")
		}

		result, err := client.DeleteFiles(sel.IDs())
		if err != nil {
			return fmt.Errorf("error deleting files: %w", err)
		}

		for _, id := range result.Deleted {
			fmt.Fprintf(out, "Deleted %s\n", id)
		}
		for _, f := range result.Failed {
			fmt.Fprintf(out, "Failed to delete %s: %s\n", f.PublicID, f.Error)
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d of %d deletions failed", len(result.Failed), sel.Len())
		}
		return nil
	},
}

// selectAll builds a selection the way a long press followed by taps does.
// Repeated ids toggle, so passing an id twice deselects it.
func selectAll(ids []string) *gallery.Selection {
	sel := gallery.NewSelection()
	for _, id := range ids {
		if !sel.Active() {
			sel.LongPress(id)
			continue
		}
		sel.Tap(id)
	}
	return sel
}

var galleryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show gallery storage usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := client.Stats()
		if err != nil {
			return fmt.Errorf("error getting stats: %w", err)
		}
		fmt.Fprintf(out, "Files: %d\n", stats.TotalFiles)
		fmt.Fprintf(out, "Used: %s of %s (%.1f%%)\n",
			utils.FormatFileSize(stats.TotalStorage),
			utils.FormatFileSize(stats.StorageLimit),
			utils.UsagePercent(stats.TotalStorage, stats.StorageLimit))
		return nil
	},
}

var shareCmd = &cobra.Command{
	Use:     "share",
	Aliases: []string{"s"},
	Short:   "Manage shared files and links",
}

var shareUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file for sharing",
	Long: `Upload a file that is removed when it expires.

Expiration formats:
  • Options: 1h, 24h, 3d, 7d, 30d
  • Hours: 24, 48, 72
  • RFC3339: 2024-12-31T23:59:59Z
  • ISO date: 2024-12-31`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expires, _ := cmd.Flags().GetString("expires")
		if expires == "" {
			return fmt.Errorf("expiration time is required")
		}

		rec, err := client.UploadShared(args[0], expires)
		if err != nil {
			return fmt.Errorf("error uploading file: %w", err)
		}

		fmt.Fprintf(out, "Shared %s\n", rec.Name)
		fmt.Fprintf(out, "URL: %s\n", rec.URL)
		fmt.Fprintf(out, "Id: %s\n", rec.PublicID)
		fmt.Fprintf(out, "%s\n", expiration.Describe(rec.Expiry, time.Now()))
		return nil
	},
}

var shareListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List live shared files, soonest expiry first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client.ListShares()
		if err != nil {
			return fmt.Errorf("error listing shares: %w", err)
		}

		now := time.Now()
		if len(result.Live) == 0 {
			fmt.Fprintln(out, "No shared files")
		}
		for _, rec := range result.Live {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", rec.PublicID, rec.Name, utils.FormatFileSize(rec.Size), expiration.Describe(rec.Expiry, now))
		}
		if len(result.Expired) > 0 {
			fmt.Fprintf(out, "Removed %d expired file(s)\n", len(result.Expired))
		}
		for _, f := range result.Failed {
			fmt.Fprintf(out, "Could not remove expired %s: %s\n", f.Record.PublicID, f.Error)
		}
		return nil
	},
}

var shareStopCmd = &cobra.Command{
	Use:   "stop <publicId>",
	Short: "Stop sharing a file and delete it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.StopSharing(args[0]); err != nil {
			return fmt.Errorf("error stopping share: %w", err)
		}
		fmt.Fprintf(out, "Stopped sharing %s\n", args[0])
		return nil
	},
}

var shareLinkCmd = &cobra.Command{
	Use:   "link <fileId>",
	Short: "Create a share link for a gallery or shared file",
	Long: `Create a share link.

Expiration options: 1h, 24h, 3d, 7d, 30d, never
Access types:       public, specific, private`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expires, _ := cmd.Flags().GetString("expires")
		access, _ := cmd.Flags().GetString("access")
		password, _ := cmd.Flags().GetString("password")

		if _, err := expiration.ParseOption(expires); err != nil {
			return err
		}

		link, err := client.CreateLink(args[0], share.CreateOptions{
			Expiration: expires,
			AccessType: access,
			Password:   password,
		})
		if err != nil {
			return fmt.Errorf("error creating link: %w", err)
		}

		fmt.Fprintf(out, "Link: %s\n", link.URL)
		fmt.Fprintf(out, "%s\n", expiration.Describe(link.ExpiresAt, time.Now()))
		return nil
	},
}

var shareLinksCmd = &cobra.Command{
	Use:   "links",
	Short: "List live share links with their counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		links, err := client.ListLinks()
		if err != nil {
			return fmt.Errorf("error listing links: %w", err)
		}
		if len(links) == 0 {
			fmt.Fprintln(out, "No links")
			return nil
		}
		now := time.Now()
		for _, l := range links {
			fmt.Fprintf(out, "%s\t%s\t%s\tviews %d\tdownloads %d\t%s\n",
				l.ID, l.FileID, l.AccessType, l.Views, l.Downloads, expiration.Describe(l.ExpiresAt, now))
		}
		return nil
	},
}

var transformCmd = &cobra.Command{
	Use:   "transform <publicId>",
	Short: "Print the URL of a gallery image with an effect applied",
	Long: `Print the URL of a gallery image with an effect applied.

Effects: background-removal, enhance, art, auto-crop, generative-fill,
generative-remove, generative-replace, generative-recolor, extract

Example: cloudshare-client transform uploads/abc --effect art --param filter=zorro`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		effect, _ := cmd.Flags().GetString("effect")
		raw, _ := cmd.Flags().GetStringArray("param")

		params := url.Values{}
		for _, p := range raw {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return fmt.Errorf("invalid param %q, expected key=value", p)
			}
			params.Add(k, v)
		}

		u, err := client.Transform(args[0], effect, params)
		if err != nil {
			return fmt.Errorf("error transforming image: %w", err)
		}
		fmt.Fprintln(out, u)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run the expired share sweep on the server (admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if token, _ := cmd.Flags().GetString("admin-token"); token != "" {
			client.AdminToken = token
		}
		if client.AdminToken == "" {
			return fmt.Errorf("admin token is required")
		}

		result, err := client.Cleanup()
		if err != nil {
			return fmt.Errorf("error running cleanup: %w", err)
		}
		fmt.Fprintf(out, "Removed %d expired share(s) and %d asset(s)\n", result.CleanedShares, result.CleanedAssets)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"c", "cfg"},
	Short:   "Manage client configuration",
	Long: `Manage client configuration settings like the server URL.

Configuration is stored in ~/.cloudshare/config.yaml`,
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Aliases: []string{"s"},
	Short:   "Set a configuration value",
	Long: `Set a configuration value.

Available keys:
  • server: Server URL (e.g., https://cloudshare.example/)
  • admin-token: Token for maintenance commands

Example: cloudshare-client config set server https://cloudshare.example/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := args[1]

		viper.Set(key, value)
		if err := saveConfig(); err != nil {
			return err
		}

		fmt.Fprintf(out, "Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:     "get <key>",
	Aliases: []string{"g"},
	Short:   "Get a configuration value",
	Long: `Get a configuration value.

Example: cloudshare-client config get server`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := viper.GetString(key)

		if value == "" {
			fmt.Fprintf(out, "%s is not set\n", key)
		} else {
			fmt.Fprintf(out, "%s = %s\n", key, value)
		}
		return nil
	},
}

func init() {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".cloudshare")
	os.MkdirAll(configDir, 0700)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.ReadInConfig() // Ignore errors if config file doesn't exist

	rootCmd.PersistentFlags().StringP("server", "s", "", "Server URL (default: "+defaultServer+")")
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	galleryListCmd.Flags().StringP("filter", "f", "all", "Filter: all, images, videos, documents")
	galleryListCmd.Flags().String("sort", "newest", "Sort: newest, oldest, name, size")
	galleryRemoveCmd.Flags().Bool("all", false, "Delete every file matching --filter")
	galleryRemoveCmd.Flags().StringP("filter", "f", "all", "Filter used with --all")

	shareUploadCmd.Flags().StringP("expires", "e", "", "Expiration time (required)")
	shareLinkCmd.Flags().StringP("expires", "e", "24h", "Expiration option: 1h, 24h, 3d, 7d, 30d, never")
	shareLinkCmd.Flags().String("access", "public", "Access type: public, specific, private")
	shareLinkCmd.Flags().String("password", "", "Require this password to open the link")

	transformCmd.Flags().String("effect", "", "Effect name (required)")
	transformCmd.Flags().StringArray("param", nil, "Effect parameter as key=value, repeatable")
	transformCmd.MarkFlagRequired("effect")

	cleanupCmd.Flags().String("admin-token", "", "Admin token (default: admin-token from config)")

	galleryCmd.AddCommand(galleryListCmd, galleryUploadCmd, galleryRemoveCmd, galleryStatsCmd)
	shareCmd.AddCommand(shareUploadCmd, shareListCmd, shareStopCmd, shareLinkCmd, shareLinksCmd)
	configCmd.AddCommand(configSetCmd, configGetCmd)

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, galleryCmd, shareCmd, transformCmd, cleanupCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
