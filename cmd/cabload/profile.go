package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/cabload/internal/config"
	"github.com/muurk/cabload/internal/ui"
)

// Profile command flags
var (
	makeDefault bool
	forceInit   bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage saved connection profiles",
	Long: `List, inspect and save named connection profiles.

Profiles live in a YAML config file (see --config). Connection flags given
to 'profile save' are applied on top of the selected profile before it is
stored, so a profile can be built up from the command line.`,
	Example: `  cabload profile init
  cabload profile save line-2 --device /dev/ttyUSB1 --address 2 --default
  cabload profile show line-2
  cabload profile list`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show the resolved settings of a profile",
	Long: `Show the settings a command would use, after applying any connection
flags. Without a name the --profile flag or the default profile is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfileShow,
}

var profileSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save the current settings as a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileSave,
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileRemove,
}

var profileInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with example profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfileInit,
}

func init() {
	addImageFlags(profileSaveCmd)
	profileSaveCmd.Flags().BoolVar(&makeDefault, "default", false, "Make this the default profile")
	profileInitCmd.Flags().BoolVar(&forceInit, "force", false, "Add examples to an existing config file")

	profileCmd.AddCommand(profileListCmd, profileShowCmd, profileSaveCmd, profileRemoveCmd, profileInitCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileList(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(reg.Profiles))
	for _, name := range reg.ProfileNames() {
		p := reg.GetProfile(name)
		label := name
		if name == reg.Default {
			label += " *"
		}
		lastUsed := "never"
		if !p.LastUsed.IsZero() {
			lastUsed = p.LastUsed.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{label, p.Kind(), p.Target(), strconv.Itoa(p.Address), lastUsed})
	}

	ui.NewPrinter(cmd.OutOrStdout()).PrintTable(
		[]string{"NAME", "TRANSPORT", "TARGET", "CABINET", "LAST USED"}, rows,
		"No profiles yet. Create some with: cabload profile init")
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if len(args) == 1 {
		profileName = args[0]
	}
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	_, p, err := resolveProfile(cmd, reg)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runProfileSave(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	name := args[0]

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	_, p, err := resolveProfile(cmd, reg)
	if err != nil {
		return err
	}
	p.LastUsed = time.Time{}
	if old := reg.GetProfile(name); old != nil {
		p.LastUsed = old.LastUsed
	}

	reg.SetProfile(name, p)
	if makeDefault || reg.Default == "" {
		reg.Default = name
	}
	if err := reg.Save(); err != nil {
		return err
	}

	path, _ := reg.Path()
	ui.NewPrinter(cmd.OutOrStdout()).PrintResult(ui.NewSuccessResult("Profile saved", map[string]string{
		"Name":    name,
		"Target":  p.Target(),
		"Default": strconv.FormatBool(reg.Default == name),
		"File":    path,
	}))
	return nil
}

func runProfileRemove(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if !reg.RemoveProfile(args[0]) {
		return fmt.Errorf("profile %q not found", args[0])
	}
	if err := reg.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed profile %s\n", args[0])
	return nil
}

func runProfileInit(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	path, err := reg.Path()
	if err != nil {
		return err
	}
	switch _, err := os.Stat(path); {
	case errors.Is(err, os.ErrNotExist):
		if _, err := config.CreateDefaultConfig(path); err != nil {
			return err
		}
	case err != nil:
		return err
	case !forceInit:
		return fmt.Errorf("%s already exists (use --force to add the example profiles to it)", path)
	default:
		reg.AddExamples()
		if err := reg.Save(); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote example profiles to %s\n", path)
	return nil
}
