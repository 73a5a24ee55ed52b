// driveback is a backup tool for Microsoft Graph backed drives.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/driveback/driveback/fs"
	"github.com/driveback/driveback/fs/config/configmap"
	"github.com/driveback/driveback/fs/fshttp"
	"github.com/spf13/cobra"

	// install the backends
	_ "github.com/driveback/driveback/backend/onedrive"
)

var (
	verbose  int
	root     string
	backend  string
	configKV []string
)

// newFs makes an Fs from the --backend, --root and --config flags
func newFs(ctx context.Context) (fs.Fs, error) {
	m := configmap.Simple{}
	if token := os.Getenv("DRIVEBACK_TOKEN"); token != "" {
		m.Set("token", token)
	}
	if authID := os.Getenv("DRIVEBACK_AUTH_ID"); authID != "" {
		m.Set("auth_id", authID)
	}
	for _, kv := range configKV {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				m.Set(kv[:i], kv[i+1:])
				break
			}
		}
	}
	info, err := fs.Find(backend)
	if err != nil {
		return nil, err
	}
	return info.NewFs(ctx, backend, root, m)
}

var rootCmd = &cobra.Command{
	Use:           "driveback",
	Short:         "Back up files to a Microsoft Graph backed drive",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case verbose >= 2:
			fs.CurrentLogLevel = fs.LogLevelDebug
		case verbose == 1:
			fs.CurrentLogLevel = fs.LogLevelInfo
		}
		fs.InitLogging()
		fshttp.StartHTTPTokenBucket(cmd.Context())
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [dir]",
	Short: "List the objects in the remote directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFs(cmd.Context())
		if err != nil {
			return err
		}
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		entries, err := f.List(cmd.Context(), dir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Printf("%9d %s %s\n", entry.Size(), entry.ModTime(cmd.Context()).Format(time.RFC3339), entry.Remote())
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get remote [localfile]",
	Short: "Download a file from the remote",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		f, err := newFs(cmd.Context())
		if err != nil {
			return err
		}
		obj, err := f.NewObject(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		in, err := obj.Open(cmd.Context())
		if err != nil {
			return err
		}
		defer fs.CheckClose(in, &err)
		var out io.Writer = os.Stdout
		if len(args) == 2 {
			file, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer fs.CheckClose(file, &err)
			out = file
		}
		_, err = io.Copy(out, in)
		return err
	},
}

var putCmd = &cobra.Command{
	Use:   "put localfile [remote]",
	Short: "Upload a file to the remote",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		f, err := newFs(cmd.Context())
		if err != nil {
			return err
		}
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer fs.CheckClose(file, &err)
		fi, err := file.Stat()
		if err != nil {
			return err
		}
		remote := filepath.Base(args[0])
		if len(args) == 2 {
			remote = args[1]
		}
		src := fs.NewStaticObjectInfo(remote, fi.ModTime(), fi.Size())
		_, err = f.Put(cmd.Context(), file, src)
		return err
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete remote",
	Short: "Delete a file on the remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFs(cmd.Context())
		if err != nil {
			return err
		}
		obj, err := f.NewObject(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return obj.Remove(cmd.Context())
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename remote newname",
	Short: "Rename a file on the remote within its directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFs(cmd.Context())
		if err != nil {
			return err
		}
		obj, err := f.NewObject(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		renamer, ok := obj.(fs.Renamer)
		if !ok {
			return fs.ErrorNotImplemented
		}
		return renamer.Rename(cmd.Context(), args[1])
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir [dir]",
	Short: "Create the directory and any missing parents",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFs(cmd.Context())
		if err != nil {
			return err
		}
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		return f.Mkdir(cmd.Context(), dir)
	},
}

var aboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Show quota information for the drive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFs(cmd.Context())
		if err != nil {
			return err
		}
		abouter, ok := f.(fs.Abouter)
		if !ok {
			return fs.ErrorNotImplemented
		}
		usage, err := abouter.About(cmd.Context())
		if err != nil {
			return err
		}
		if usage.Total == nil && usage.Free == nil {
			fmt.Println("quota: unknown")
			return nil
		}
		if usage.Total != nil {
			fmt.Printf("total: %v\n", fs.SizeSuffix(*usage.Total))
		}
		if usage.Used != nil {
			fmt.Printf("used:  %v\n", fs.SizeSuffix(*usage.Used))
		}
		if usage.Free != nil {
			fmt.Printf("free:  %v\n", fs.SizeSuffix(*usage.Free))
		}
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the remote is reachable and writable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFs(cmd.Context())
		if err != nil {
			return err
		}
		tester, ok := f.(fs.Tester)
		if !ok {
			return fs.ErrorNotImplemented
		}
		if err := tester.Test(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("test succeeded")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version number",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("driveback " + fs.Version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.CountVarP(&verbose, "verbose", "v", "Print lots more stuff (repeat for more)")
	flags.StringVar(&backend, "backend", "onedrive", "Backend to use")
	flags.StringVar(&root, "root", "", "Root folder on the remote under which all files live")
	flags.StringArrayVar(&configKV, "config", nil, "Backend config in key=value form (eg fragment_size=5M)")
	rootCmd.AddCommand(lsCmd, getCmd, putCmd, deleteCmd, renameCmd, mkdirCmd, aboutCmd, testCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fs.Errorf(nil, "%v", err)
		os.Exit(1)
	}
}
