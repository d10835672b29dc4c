// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/decred/slog"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename    = "parastats.conf"
	defaultDataDirname       = "data"
	defaultLogLevel          = "debug"
	defaultLogDirname        = "log"
	defaultLogFilename       = "parastats.log"
	defaultDBFilename        = "parastats.kv"
	defaultListen            = "0.0.0.0:8000"
	defaultSourceURL         = "http://localhost:8500"
	defaultSourceTimeout     = 10
	defaultRequestLimit      = 100
	defaultRequestWindow     = 60
	defaultSweepInterval     = 300
	defaultMaxCollections    = 5
	defaultCollectTimeout    = 30
	defaultReconcileInterval = 600
	defaultReconcileRate     = 2
	defaultPGHost            = "127.0.0.1"
	defaultPGPort            = 5432
	defaultPGUser            = "parastats"
	defaultPGPass            = "parastats"
	defaultPGDBName          = "parastatsdb"
)

var (
	parastatsHomeDir  = appDataDir("parastats")
	defaultConfigFile = filepath.Join(parastatsHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(parastatsHomeDir, defaultDataDirname)
	defaultDBFile     = filepath.Join(defaultDataDir, defaultDBFilename)
	defaultLogDir     = filepath.Join(parastatsHomeDir, defaultLogDirname)
)

// config defines the configuration options for parastats.
type config struct {
	HomeDir           string  `long:"homedir" description:"Path to application home directory"`
	ConfigFile        string  `long:"configfile" description:"Path to configuration file"`
	DataDir           string  `long:"datadir" description:"The data directory"`
	DebugLevel        string  `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogDir            string  `long:"logdir" description:"Directory to log output."`
	DBFile            string  `long:"dbfile" description:"Path to the database file"`
	Listen            string  `long:"listen" description:"The listening address of the API server"`
	SourceURL         string  `long:"sourceurl" description:"The base URL of the share submission source"`
	SourceTimeout     uint64  `long:"sourcetimeout" description:"The submission source request timeout in seconds"`
	RequestLimit      uint32  `long:"requestlimit" description:"The number of API requests allowed per client per window"`
	RequestWindow     uint64  `long:"requestwindow" description:"The API rate limit window in seconds"`
	SweepInterval     uint64  `long:"sweepinterval" description:"The wait between sweeps of expired rate limit entries in seconds"`
	MaxCollections    int     `long:"maxcollections" description:"The bound on concurrent interval collections"`
	CollectTimeout    uint64  `long:"collecttimeout" description:"The deadline for reporting triggered collections in seconds"`
	ReconcileInterval uint64  `long:"reconcileinterval" description:"The wait between watermark gap scans in seconds"`
	ReconcileRate     float64 `long:"reconcilerate" description:"The bound on backfill collections per second"`
	UsePostgres       bool    `long:"postgres" description:"Use postgres database instead of bolt"`
	PGHost            string  `long:"postgreshost" description:"Host of the postgres database"`
	PGPort            uint32  `long:"postgresport" description:"Port of the postgres database"`
	PGUser            string  `long:"postgresuser" description:"Username of the postgres database"`
	PGPass            string  `long:"postgrespass" default-mask:"-" description:"Password of the postgres database"`
	PGDBName          string  `long:"postgresdbname" description:"Name of the postgres database"`
	UseLEHTTPS        bool    `long:"uselehttps" description:"Use Letsencrypt HTTPS for the API server"`
	NoTLS             bool    `long:"notls" description:"Serve the API over plain HTTP"`
	Domain            string  `long:"domain" description:"Domain of the dashboard, required for Letsencrypt HTTPS"`
	TLSCert           string  `long:"tlscert" description:"Path to the TLS certificate of the API server"`
	TLSKey            string  `long:"tlskey" description:"Path to the TLS key of the API server"`
	Profile           string  `long:"profile" description:"Enable HTTP profiling on given [addr:]port -- NOTE: port must be between 1024 and 65536"`
}

// suppressUsageError wraps an error that should not have the usage message
// printed along with it.
type suppressUsageError struct {
	error
}

// appDataDir returns the application data directory of the provided
// application name in the current user's home directory.
func appDataDir(appName string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, "."+appName)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]

	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}

	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	_, ok := slog.LevelFromString(logLevel)
	return ok
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsystems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// createConfigFile copies the sample config to the given destination path.
func createConfigFile(preCfg config) error {
	// Create the destination directory if it does not exist.
	err := os.MkdirAll(filepath.Dir(preCfg.ConfigFile), 0700)
	if err != nil {
		return err
	}

	// Replace the sample configuration file contents with the provided values.
	debugLevelRE := regexp.MustCompile(`(?m)^;\s*debuglevel=[^\s]*$`)
	homeDirRE := regexp.MustCompile(`(?m)^;\s*homedir=[^\s]*$`)
	dataDirRE := regexp.MustCompile(`(?m)^;\s*datadir=[^\s]*$`)
	configFileRE := regexp.MustCompile(`(?m)^;\s*configfile=[^\s]*$`)
	dbFileRE := regexp.MustCompile(`(?m)^;\s*dbfile=[^\s]*$`)
	logDirRE := regexp.MustCompile(`(?m)^;\s*logdir=[^\s]*$`)
	listenRE := regexp.MustCompile(`(?m)^;\s*listen=[^\s]*$`)
	sourceURLRE := regexp.MustCompile(`(?m)^;\s*sourceurl=[^\s]*$`)
	s := homeDirRE.ReplaceAllString(ConfigFileContents,
		fmt.Sprintf("homedir=%s", preCfg.HomeDir))
	s = debugLevelRE.ReplaceAllString(s,
		fmt.Sprintf("debuglevel=%s", preCfg.DebugLevel))
	s = dataDirRE.ReplaceAllString(s,
		fmt.Sprintf("datadir=%s", preCfg.DataDir))
	s = configFileRE.ReplaceAllString(s,
		fmt.Sprintf("configfile=%s", preCfg.ConfigFile))
	s = dbFileRE.ReplaceAllString(s,
		fmt.Sprintf("dbfile=%s", preCfg.DBFile))
	s = logDirRE.ReplaceAllString(s,
		fmt.Sprintf("logdir=%s", preCfg.LogDir))
	s = listenRE.ReplaceAllString(s,
		fmt.Sprintf("listen=%s", preCfg.Listen))
	s = sourceURLRE.ReplaceAllString(s,
		fmt.Sprintf("sourceurl=%s", preCfg.SourceURL))

	// Create config file at the provided path.
	dest, err := os.OpenFile(preCfg.ConfigFile,
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = dest.WriteString(s)
	return err
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in parastats functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig(appName string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:           parastatsHomeDir,
		ConfigFile:        defaultConfigFile,
		DataDir:           defaultDataDir,
		DBFile:            defaultDBFile,
		DebugLevel:        defaultLogLevel,
		LogDir:            defaultLogDir,
		Listen:            defaultListen,
		SourceURL:         defaultSourceURL,
		SourceTimeout:     defaultSourceTimeout,
		RequestLimit:      defaultRequestLimit,
		RequestWindow:     defaultRequestWindow,
		SweepInterval:     defaultSweepInterval,
		MaxCollections:    defaultMaxCollections,
		CollectTimeout:    defaultCollectTimeout,
		ReconcileInterval: defaultReconcileInterval,
		ReconcileRate:     defaultReconcileRate,
		PGHost:            defaultPGHost,
		PGPort:            defaultPGPort,
		PGUser:            defaultPGUser,
		PGPass:            defaultPGPass,
		PGDBName:          defaultPGDBName,
	}

	// Pre-parse the command line options to see if an alternative config
	// file was specified.  Any errors aside from the help message error can
	// be ignored here since they will be caught by the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)

	// Update the home directory for parastats if specified. Since the home
	// directory is updated, other variables need to be updated to reflect
	// the new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(preCfg.HomeDir)

		if preCfg.ConfigFile == defaultConfigFile {
			defaultConfigFile = filepath.Join(cfg.HomeDir,
				defaultConfigFilename)
			preCfg.ConfigFile = defaultConfigFile
			cfg.ConfigFile = defaultConfigFile
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = preCfg.DataDir
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
		if preCfg.DBFile == defaultDBFile {
			cfg.DBFile = filepath.Join(cfg.DataDir, defaultDBFilename)
		} else {
			cfg.DBFile = preCfg.DBFile
		}
	}

	// Create a default config file when one does not exist and the user did
	// not specify an override.
	if !fileExists(preCfg.ConfigFile) {
		err := createConfigFile(preCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating a default "+
				"config file: %v", err)
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathError *os.PathError
		if !errors.As(err, &pathError) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			return nil, nil, suppressUsageError{err}
		}
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err = os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is linked
		// to a directory that does not exist (probably because it's not
		// mounted).
		var e *os.PathError
		if errors.As(err, &e) && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = fmt.Errorf(str, e.Path, link)
			}
		}

		str := "%s: failed to create home directory: %v"
		return nil, nil, fmt.Errorf(str, funcName, err)
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	err = os.MkdirAll(cfg.DataDir, 0700)
	if err != nil {
		str := "%s: failed to create data directory: %v"
		return nil, nil, fmt.Errorf(str, funcName, err)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, fmt.Errorf("%s: %v", funcName, err)
	}

	// Check the submission source URL is valid.
	_, err = url.ParseRequestURI(cfg.SourceURL)
	if err != nil {
		str := "%s: source url '%s' failed to parse: %v"
		return nil, nil, fmt.Errorf(str, funcName, cfg.SourceURL, err)
	}

	// Letsencrypt HTTPS needs a domain to request certificates for.
	if cfg.UseLEHTTPS && cfg.Domain == "" {
		str := "%s: a domain is required for Letsencrypt HTTPS"
		return nil, nil, fmt.Errorf(str, funcName)
	}

	// The default TLS mode needs a certificate and key pair.
	if !cfg.UseLEHTTPS && !cfg.NoTLS {
		if !fileExists(cfg.TLSCert) || !fileExists(cfg.TLSKey) {
			str := "%s: TLS certificate and key files are required, " +
				"use --notls to serve plain HTTP"
			return nil, nil, fmt.Errorf(str, funcName)
		}
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid options.
	// Note this should go directly before the return.
	if configFileError != nil {
		pLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
