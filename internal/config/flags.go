package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to the upper-cased flag name to form the
// environment variable that supplies the same setting.
const EnvPrefix = "SYNC_ICLOUD_GIT__"

// Flag names
const (
	FlagGitRemoteURL        = "git-remote-url"
	FlagGitUsername         = "git-username"
	FlagGitPAT              = "git-pat"
	FlagGitRepoPath         = "git-repo-path"
	FlagGitCommitMessage    = "git-commit-message"
	FlagGitCommitUsername   = "git-commit-username"
	FlagGitCommitEmail      = "git-commit-email"
	FlagRcloneConfigContent = "rclone-config-content"
	FlagRcloneRemoteName    = "rclone-remote-name"
	FlagRcloneRemoteFolder  = "rclone-remote-folder"
	FlagExcludePatterns     = "exclude-patterns"
	FlagStep                = "step"
	FlagVerbose             = "verbose"
	FlagSyncTimeout         = "sync-timeout"
	FlagLogLevel            = "log-level"
	FlagLogFormat           = "log-format"
	FlagConfig              = "config"
)

// EnvName returns the environment variable for a flag,
// e.g. git-remote-url becomes SYNC_ICLOUD_GIT__GIT_REMOTE_URL.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// LookupFunc reports the value of an environment variable, like os.LookupEnv
type LookupFunc func(key string) (string, bool)

// option binds one setting to its flag and environment variable. field
// returns a pointer into the settings; its type selects the parser.
type option struct {
	name  string
	usage string
	field func(s *Settings) any
}

var options = []option{
	{FlagGitRemoteURL, "URL of the git repository to sync into (required)",
		func(s *Settings) any { return &s.Git.RemoteURL }},
	{FlagGitUsername, "git username for HTTPS authentication (required)",
		func(s *Settings) any { return &s.Git.Username }},
	{FlagGitPAT, "git personal access token (required)",
		func(s *Settings) any { return &s.Git.PAT }},
	{FlagGitRepoPath, "local path of the working copy",
		func(s *Settings) any { return &s.Git.RepoPath }},
	{FlagGitCommitMessage, "message used for sync commits",
		func(s *Settings) any { return &s.Git.CommitMessage }},
	{FlagGitCommitUsername, "author name used for sync commits",
		func(s *Settings) any { return &s.Git.CommitUsername }},
	{FlagGitCommitEmail, "author email used for sync commits",
		func(s *Settings) any { return &s.Git.CommitEmail }},
	{FlagRcloneConfigContent, "full content of the rclone config file (required)",
		func(s *Settings) any { return &s.Rclone.ConfigContent }},
	{FlagRcloneRemoteName, "name of the remote inside the rclone config",
		func(s *Settings) any { return &s.Rclone.RemoteName }},
	{FlagRcloneRemoteFolder, "folder on the remote to mirror (required)",
		func(s *Settings) any { return &s.Rclone.RemoteFolder }},
	{FlagExcludePatterns, "additional rclone exclude patterns (repeatable or comma separated)",
		func(s *Settings) any { return &s.Rclone.ExcludePatterns }},
	{FlagStep, "steps to run (all, clone, update, sync)",
		func(s *Settings) any { return &s.Sync.Step }},
	{FlagVerbose, "enable debug logging",
		func(s *Settings) any { return &s.Sync.Verbose }},
	{FlagSyncTimeout, "upper bound for the cloud transfer",
		func(s *Settings) any { return &s.Sync.Timeout }},
	{FlagLogLevel, "log level (debug, info, warn, error)",
		func(s *Settings) any { return &s.Log.Level }},
	{FlagLogFormat, "log format (text, json)",
		func(s *Settings) any { return &s.Log.Format }},
}

func optionByName(name string) (option, bool) {
	for _, o := range options {
		if o.name == name {
			return o, true
		}
	}
	return option{}, false
}

// RegisterFlags adds every setting flag, plus --config, to fs. Flag defaults
// mirror Default().
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagConfig, "", "path to an optional YAML settings file")
	for _, o := range options {
		switch p := o.field(d).(type) {
		case *string:
			fs.String(o.name, *p, o.usage)
		case *bool:
			fs.Bool(o.name, *p, o.usage)
		case *time.Duration:
			fs.Duration(o.name, *p, o.usage)
		case *Mode:
			fs.String(o.name, string(*p), o.usage)
		case *[]string:
			fs.StringArray(o.name, *p, o.usage)
		}
	}
}

// Resolve builds the settings for a run. Precedence from lowest to highest:
// defaults, the YAML file named by --config, environment variables, and
// flags set explicitly on the command line.
func Resolve(fs *pflag.FlagSet, lookup LookupFunc) (*Settings, error) {
	s := Default()

	path, _ := lookup(EnvName(FlagConfig))
	if f := fs.Lookup(FlagConfig); f != nil && f.Changed {
		path = f.Value.String()
	}
	if path != "" {
		if err := s.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := s.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := s.ApplyFlags(fs); err != nil {
		return nil, err
	}

	return s, nil
}

// ApplyEnv overlays non-empty environment variables onto s.
func (s *Settings) ApplyEnv(lookup LookupFunc) error {
	for _, o := range options {
		key := EnvName(o.name)
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		if err := o.set(s, v); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

// ApplyFlags overlays flags that were set on the command line onto s.
func (s *Settings) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		o, ok := optionByName(f.Name)
		if !ok {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			if p, ok := o.field(s).(*[]string); ok {
				var list []string
				for _, v := range sv.GetSlice() {
					list = append(list, splitList(v)...)
				}
				*p = list
				return
			}
		}
		if setErr := o.set(s, f.Value.String()); setErr != nil {
			err = fmt.Errorf("invalid --%s: %w", f.Name, setErr)
		}
	})
	return err
}

func (o option) set(s *Settings, raw string) error {
	switch p := o.field(s).(type) {
	case *string:
		*p = raw
	case *bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*p = v
	case *time.Duration:
		v, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*p = v
	case *Mode:
		m, err := ParseMode(raw)
		if err != nil {
			return err
		}
		*p = m
	case *[]string:
		*p = splitList(raw)
	}
	return nil
}

// splitList splits a comma separated list, dropping blank entries. Commas
// inside {...} or [...] and escaped commas belong to the pattern, so globs
// like *.{tmp,bak} stay whole.
func splitList(raw string) []string {
	var out []string
	add := func(part string) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	braces, brackets, start := 0, 0, 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\\':
			i++
		case '{':
			braces++
		case '}':
			if braces > 0 {
				braces--
			}
		case '[':
			brackets++
		case ']':
			if brackets > 0 {
				brackets--
			}
		case ',':
			if braces == 0 && brackets == 0 {
				add(raw[start:i])
				start = i + 1
			}
		}
	}
	add(raw[start:])
	return out
}
