package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
	"gopkg.in/ini.v1"

	"github.com/useradminops/useradmin/logger"
	"github.com/useradminops/useradmin/useradmin/accountclient"
	"github.com/useradminops/useradmin/useradmin/accounteditor"
	"github.com/useradminops/useradmin/useradmin/accountmodel"
	"github.com/useradminops/useradmin/useradmin/sessionmanager"
)

var log = logrus.New()

type flags struct {
	Admin       bool
	AutoLogin   bool
	Create      bool
	Debug       bool
	Delete      string
	Email       string
	IniFilePath string
	KeepFiles   bool
	List        bool
	LogFileName string
	Passwd      string
	RealName    string
	Sets        setsValue
	Timeout     time.Duration
	User        string
	Watch       bool
}

type setsValue []string

func (s *setsValue) String() string {
	return strings.Join(*s, ",")
}

func (s *setsValue) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func parseFlags() *flags {
	f := &flags{}
	flag.BoolVar(&f.Admin, "admin", false, "Make the created account an administrator")
	flag.BoolVar(&f.AutoLogin, "auto-login", false, "Enable automatic login for the created account")
	flag.BoolVar(&f.Create, "create", false, "Create a new account from the -user/-real-name/-email flags")
	flag.BoolVar(&f.Debug, "debug", false, "Enable debug log level")
	flag.BoolVar(&f.KeepFiles, "keep-files", true, "Keep the home directory when deleting an account")
	flag.BoolVar(&f.List, "list", false, "List all accounts")
	flag.BoolVar(&f.Watch, "watch", false, "Watch account and session changes until interrupted")
	flag.DurationVar(&f.Timeout, "timeout", 0, "Per-call timeout for accounts service calls")
	flag.StringVar(&f.Delete, "delete", "", "Delete the account with this login name")
	flag.StringVar(&f.Email, "email", "", "Email address for the created account")
	flag.StringVar(&f.IniFilePath, "ini", "", "Path to INI file with defaults")
	flag.StringVar(&f.LogFileName, "log", "useradmin.log", "Log file name")
	flag.StringVar(&f.Passwd, "passwd", "", "Change the password of the account with this login name")
	flag.StringVar(&f.RealName, "real-name", "", "Real name for the created account")
	flag.StringVar(&f.User, "user", "", "Login name the -set edits apply to")
	flag.Var(&f.Sets, "set", "Field edit as field=value; repeatable (username, realname, email, administrator, autologin, face)")

	flag.Parse()

	return f
}

type defaults struct {
	Timeout      time.Duration
	PasswordHint string
}

// readDefaultsFromFile loads optional site defaults. Flags beat the
// file; the file beats built-ins.
func readDefaultsFromFile(filePath string) (defaults, error) {
	d := defaults{Timeout: accountclient.DefaultCallTimeout}

	cfg, err := ini.Load(filePath)
	if err != nil {
		return d, err
	}

	bus := cfg.Section("bus")
	if key, err := bus.GetKey("timeout"); err == nil {
		if timeout, err := key.Duration(); err == nil {
			d.Timeout = timeout
		}
	}

	d.PasswordHint = cfg.Section("passwd").Key("hint").String()

	return d, nil
}

// parseFieldAssignment splits a -set argument into a model field and
// its typed value.
func parseFieldAssignment(assignment string) (accountmodel.Field, interface{}, error) {
	name, raw, found := strings.Cut(assignment, "=")
	if !found {
		return 0, nil, fmt.Errorf("malformed assignment %q, want field=value", assignment)
	}

	switch name {
	case "username":
		return accountmodel.FieldUsername, raw, nil
	case "realname":
		return accountmodel.FieldRealName, raw, nil
	case "email":
		return accountmodel.FieldEmail, raw, nil
	case "face":
		return accountmodel.FieldFace, raw, nil
	case "administrator", "autologin":
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return 0, nil, fmt.Errorf("field %s takes a boolean, got %q", name, raw)
		}
		if name == "administrator" {
			return accountmodel.FieldAdministrator, value, nil
		}
		return accountmodel.FieldAutomaticLogin, value, nil
	}
	return 0, nil, fmt.Errorf("unknown field %q", name)
}

// configureLogger sends the CLI's own log to the log file and returns
// the file so the model's structured log can share it.
func configureLogger(f *flags) *os.File {
	file, err := os.OpenFile(f.LogFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logrus.Fatal(err)
	}

	log.SetOutput(file)
	if f.Debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return file
}

func listAccounts(model *accountmodel.Model) {
	fmt.Printf("%-20s %-28s %-6s %-10s %s\n", "USERNAME", "NAME", "ADMIN", "AUTOLOGIN", "LOGGED IN")
	for row := 0; row < model.RowCount(); row++ {
		username, ok := model.Data(row, accountmodel.FieldUsername).(string)
		if !ok {
			continue // draft row
		}
		fmt.Printf("%-20s %-28s %-6v %-10v %v\n",
			username,
			model.Data(row, accountmodel.FieldFriendlyName),
			model.Data(row, accountmodel.FieldAdministrator),
			model.Data(row, accountmodel.FieldAutomaticLogin),
			model.Data(row, accountmodel.FieldLogged),
		)
	}
}

// usernameExists consults the passwd database, the authoritative
// source for names the accounts service may not list.
func usernameExists(name string) bool {
	_, err := user.Lookup(name)
	return err == nil
}

func createAccount(ctx context.Context, model *accountmodel.Model, f *flags) error {
	username := accounteditor.CleanUsername(f.User)
	if err := accounteditor.ValidateUsername(username, usernameExists); err != nil {
		return err
	}
	if err := accounteditor.ValidateName(f.RealName); err != nil {
		return err
	}
	email := accounteditor.CleanEmail(f.Email)
	if email != "" {
		if err := accounteditor.ValidateEmail(email); err != nil {
			// Shape problems never block the value; they are advisory.
			log.Warnf("email %q: %v", email, err)
		}
	}

	draft := model.DraftRow()
	stage := []struct {
		field accountmodel.Field
		value interface{}
	}{
		{accountmodel.FieldUsername, username},
		{accountmodel.FieldRealName, f.RealName},
		{accountmodel.FieldEmail, email},
		{accountmodel.FieldAdministrator, f.Admin},
		{accountmodel.FieldAutomaticLogin, f.AutoLogin},
	}
	for _, s := range stage {
		if err := model.SetData(ctx, draft, s.field, s.value); err != nil {
			return err
		}
	}

	log.Infof("created account %s", username)
	return nil
}

func deleteAccount(ctx context.Context, model *accountmodel.Model, f *flags) error {
	row := model.RowForUsername(f.Delete)
	if row < 0 {
		return fmt.Errorf("no account with login name %q", f.Delete)
	}
	return model.RemoveAccount(ctx, row, f.KeepFiles)
}

func applyEdits(ctx context.Context, model *accountmodel.Model, f *flags) error {
	if f.User == "" {
		return fmt.Errorf("-set requires -user")
	}
	row := model.RowForUsername(f.User)
	if row < 0 {
		return fmt.Errorf("no account with login name %q", f.User)
	}

	editor := accounteditor.New(model, accounteditor.WithUserLookup(usernameExists))
	editor.SetRow(row)

	// Candidate input starts from the committed values so untouched
	// fields stay out of the staged set.
	input := accounteditor.Input{
		Username:       dataString(model, row, accountmodel.FieldUsername),
		RealName:       dataString(model, row, accountmodel.FieldRealName),
		Email:          dataString(model, row, accountmodel.FieldEmail),
		Administrator:  dataBool(model, row, accountmodel.FieldAdministrator),
		AutomaticLogin: dataBool(model, row, accountmodel.FieldAutomaticLogin),
	}

	for _, assignment := range f.Sets {
		field, value, err := parseFieldAssignment(assignment)
		if err != nil {
			return err
		}
		switch field {
		case accountmodel.FieldUsername:
			input.Username = value.(string)
		case accountmodel.FieldRealName:
			input.RealName = value.(string)
		case accountmodel.FieldEmail:
			input.Email = value.(string)
		case accountmodel.FieldAdministrator:
			input.Administrator = value.(bool)
		case accountmodel.FieldAutomaticLogin:
			input.AutomaticLogin = value.(bool)
		case accountmodel.FieldFace:
			editor.StageFace(value.(string))
		}
	}

	if !editor.Review(input) {
		fmt.Println("Nothing to change.")
		return nil
	}
	for _, field := range []accountmodel.Field{accountmodel.FieldUsername, accountmodel.FieldRealName, accountmodel.FieldEmail} {
		if issue := editor.Issue(field); issue != nil {
			fmt.Printf("%s: %v\n", field, issue)
		}
	}

	failed, err := editor.Save(ctx)
	for _, field := range failed {
		fmt.Printf("Failed to change %s.\n", field)
	}
	return err
}

func changePassword(ctx context.Context, model *accountmodel.Model, f *flags, hint string) error {
	row := model.RowForUsername(f.Passwd)
	if row < 0 {
		return fmt.Errorf("no account with login name %q", f.Passwd)
	}

	fmt.Printf("Enter the new password for %s: ", f.Passwd)
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Print("Repeat the new password: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	if string(first) != string(second) {
		return fmt.Errorf("passwords do not match")
	}

	crypted, err := bcrypt.GenerateFromPassword(first, bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return model.SetData(ctx, row, accountmodel.FieldPassword, accountmodel.Credential{
		Crypted: string(crypted),
		Hint:    hint,
	})
}

func watch(ctx context.Context, model *accountmodel.Model, sessions <-chan sessionmanager.Event) {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println("Watching for account changes; interrupt to stop.")
	model.Run(ctx, sessions)
}

func main() {
	f := parseFlags()
	logFile := configureLogger(f)

	d := defaults{Timeout: accountclient.DefaultCallTimeout}
	if f.IniFilePath != "" {
		var err error
		if d, err = readDefaultsFromFile(f.IniFilePath); err != nil {
			log.Fatalf("Failed to read INI file: %v", err)
		}
	}
	if f.Timeout > 0 {
		d.Timeout = f.Timeout
	}

	ctx := context.Background()

	client, err := accountclient.NewBusClient(accountclient.WithCallTimeout(d.Timeout))
	if err != nil {
		log.Fatalf("Failed to connect to the accounts service: %v", err)
	}
	defer client.Close()

	var sessions <-chan sessionmanager.Event
	watcher, err := sessionmanager.NewLogindWatcher(ctx)
	if err != nil {
		// Logged-in status degrades to unknown without the watcher.
		log.Warnf("Session watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
		sessions = watcher.Events()
	}

	modelLevel := slog.LevelInfo
	if f.Debug {
		modelLevel = slog.LevelDebug
	}
	model, err := accountmodel.New(ctx, client,
		accountmodel.WithLogger(logger.NewWithOutput(logFile, modelLevel)),
		accountmodel.OnRowsInserted(func(row int) { log.Debugf("row %d inserted", row) }),
		accountmodel.OnRowsRemoved(func(row int) { log.Debugf("row %d removed", row) }),
		accountmodel.OnDataChanged(func(row int) { log.Debugf("row %d changed", row) }),
	)
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}

	if f.List {
		listAccounts(model)
	}

	if f.Create {
		if err := createAccount(ctx, model, f); err != nil {
			log.Fatalf("Failed to create account: %v", err)
		}
	}

	if f.Delete != "" {
		if err := deleteAccount(ctx, model, f); err != nil {
			log.Fatalf("Failed to delete account: %v", err)
		}
	}

	if len(f.Sets) > 0 {
		if err := applyEdits(ctx, model, f); err != nil {
			log.Fatalf("Failed to apply edits: %v", err)
		}
	}

	if f.Passwd != "" {
		if err := changePassword(ctx, model, f, d.PasswordHint); err != nil {
			log.Fatalf("Failed to change password: %v", err)
		}
	}

	if f.Watch {
		watch(ctx, model, sessions)
	}
}

func dataString(model *accountmodel.Model, row int, field accountmodel.Field) string {
	s, _ := model.Data(row, field).(string)
	return s
}

func dataBool(model *accountmodel.Model, row int, field accountmodel.Field) bool {
	b, _ := model.Data(row, field).(bool)
	return b
}
