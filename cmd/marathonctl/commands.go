package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/auth"
	"github.com/sakif/marathon-client/internal/model"
	"github.com/sakif/marathon-client/internal/store"
)

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"login", "-email E -password P", "sign in with email and password", cmdLogin},
		{"register", "-name N -email E -password P [-photo URL]", "create an account and sign in", cmdRegister},
		{"oauth-url", "", "print the provider sign-in URL", cmdOAuthURL},
		{"oauth-complete", "-callback URL", "finish provider sign-in from the redirect URL", cmdOAuthComplete},
		{"logout", "", "sign out", cmdLogout},
		{"whoami", "", "show the signed-in user", cmdWhoami},
		{"marathons", "[-sort newest|oldest] [-location L]", "list all marathons", cmdMarathons},
		{"mine", "", "list marathons you organize", cmdMine},
		{"featured", "[-sort newest|oldest] [-location L]", "list featured marathons (no sign-in needed)", cmdFeatured},
		{"get", "-id ID", "show one marathon", cmdGet},
		{"create", "-title T -location L -start-reg D -end-reg D -start D -distance 3k|5k|10k|25k|42k|half|full [-description S] [-image URL]", "create a marathon", cmdCreate},
		{"update", "-id ID [fields as for create]", "update a marathon you organize", cmdUpdate},
		{"delete", "-id ID", "delete a marathon you organize", cmdDelete},
		{"apply", "-marathon ID -first F -last L -contact C [-info S]", "register for a marathon", cmdApply},
		{"applications", "[-search S] [-filter S]", "list your applications", cmdApplications},
		{"application-update", "-id ID [-first F] [-last L] [-contact C] [-info S]", "update one of your applications", cmdApplicationUpdate},
		{"application-delete", "-id ID", "withdraw one of your applications", cmdApplicationDelete},
		{"stats", "", "show dashboard counters", cmdStats},
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: marathonctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-20s %s\n", c.name, c.summary)
		if c.usage != "" {
			fmt.Fprintf(w, "  %-20s   %s\n", "", c.usage)
		}
	}
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// dateFlag parses YYYY-MM-DD and remembers whether it was given.
type dateFlag struct {
	date model.Date
	set  bool
}

func (d *dateFlag) String() string {
	if !d.set {
		return ""
	}
	return d.date.String()
}

func (d *dateFlag) Set(s string) error {
	parsed, err := model.ParseDate(s)
	if err != nil {
		return err
	}
	d.date, d.set = parsed, true
	return nil
}

func (d *dateFlag) ptr() *model.Date {
	if !d.set {
		return nil
	}
	v := d.date
	return &v
}

func required(fs *flag.FlagSet, names ...string) error {
	given := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { given[f.Name] = true })
	var missing []string
	for _, n := range names {
		if !given[n] {
			missing = append(missing, "-"+n)
		}
	}
	if len(missing) > 0 {
		return apperror.ValidationFailed(missing[0], "missing required flag "+strings.Join(missing, ", "))
	}
	return nil
}

// visited returns the names of the flags given on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	session, err := a.session.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	return a.print(session)
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs := a.flags("register")
	var p store.Profile
	fs.StringVar(&p.Name, "name", "", "display name")
	fs.StringVar(&p.Email, "email", "", "account email")
	fs.StringVar(&p.Password, "password", "", "account password")
	fs.StringVar(&p.PhotoURL, "photo", "", "profile photo URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	session, err := a.session.Register(ctx, p)
	if err != nil {
		return err
	}
	return a.print(session)
}

func cmdOAuthURL(ctx context.Context, a *app, args []string) error {
	if a.provider == nil {
		return apperror.ValidationFailed("provider", "provider sign-in is not configured (set OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET)")
	}
	state := xid.New().String()
	if err := a.db.Slot(oauthStateSlotKey).Save(ctx, state); err != nil {
		return fmt.Errorf("saving sign-in state: %w", err)
	}
	return a.print(map[string]string{"url": a.provider.AuthURL(state), "state": state})
}

func cmdOAuthComplete(ctx context.Context, a *app, args []string) error {
	if a.provider == nil {
		return apperror.ValidationFailed("provider", "provider sign-in is not configured (set OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET)")
	}
	fs := a.flags("oauth-complete")
	callback := fs.String("callback", "", "the full redirect URL the provider sent you to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "callback"); err != nil {
		return err
	}
	cb, err := auth.ParseCallback(*callback)
	if err != nil {
		return apperror.ValidationFailed("callback", err.Error())
	}

	stateSlot := a.db.Slot(oauthStateSlotKey)
	expected, ok, err := stateSlot.Load(ctx)
	if err != nil {
		return fmt.Errorf("reading sign-in state: %w", err)
	}
	if !ok {
		return apperror.ValidationFailed("callback", "no sign-in in progress; run oauth-url first")
	}
	session, err := a.session.LoginWithProvider(ctx, auth.CodeGrant{
		Provider:      a.provider,
		Callback:      cb,
		ExpectedState: expected,
	})
	if err != nil {
		return err
	}
	if err := stateSlot.Clear(ctx); err != nil {
		a.logger.Warn("could not clear sign-in state", slog.String("error", err.Error()))
	}
	return a.print(session)
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	a.session.Logout(ctx)
	return a.print(map[string]string{"state": a.session.State().String()})
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	session, ok := a.session.Current()
	if !ok {
		return a.print(map[string]string{"state": a.session.State().String()})
	}
	return a.print(session)
}

func listFlags(a *app, name string, args []string) (model.SortOrder, string, error) {
	fs := a.flags(name)
	sort := fs.String("sort", "", "newest or oldest")
	location := fs.String("location", "", "case-insensitive location substring")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	return model.SortOrder(*sort), *location, nil
}

func cmdMarathons(ctx context.Context, a *app, args []string) error {
	sort, location, err := listFlags(a, "marathons", args)
	if err != nil {
		return err
	}
	if _, ok := a.session.Current(); !ok {
		return apperror.Unauthenticated("You must be logged in to view marathons")
	}
	list, err := a.marathons.List(ctx, sort, location)
	if err != nil {
		return err
	}
	return a.print(list)
}

func cmdMine(ctx context.Context, a *app, args []string) error {
	if _, ok := a.session.Current(); !ok {
		return apperror.Unauthenticated("You must be logged in to view your marathons")
	}
	list, err := a.marathons.ListMine(ctx)
	if err != nil {
		return err
	}
	return a.print(list)
}

func cmdFeatured(ctx context.Context, a *app, args []string) error {
	sort, location, err := listFlags(a, "featured", args)
	if err != nil {
		return err
	}
	list, err := a.marathons.ListFeatured(ctx, sort, location)
	if err != nil {
		return err
	}
	return a.print(list)
}

func idFlag(a *app, name string, args []string) (string, error) {
	fs := a.flags(name)
	id := fs.String("id", "", "record ID")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if err := required(fs, "id"); err != nil {
		return "", err
	}
	return *id, nil
}

func cmdGet(ctx context.Context, a *app, args []string) error {
	id, err := idFlag(a, "get", args)
	if err != nil {
		return err
	}
	m, err := a.marathons.Get(ctx, id)
	if err != nil {
		return err
	}
	return a.print(m)
}

// marathonFlags binds every editable marathon field.
type marathonFlags struct {
	title, location, distance, description, image string
	startReg, endReg, start                       dateFlag
}

func bindMarathonFlags(fs *flag.FlagSet) *marathonFlags {
	f := &marathonFlags{}
	fs.StringVar(&f.title, "title", "", "marathon title")
	fs.StringVar(&f.location, "location", "", "location")
	fs.StringVar(&f.distance, "distance", "", "running distance: 3k, 5k, 10k, 25k, 42k, half or full")
	fs.StringVar(&f.description, "description", "", "description")
	fs.StringVar(&f.image, "image", "", "image URL")
	fs.Var(&f.startReg, "start-reg", "registration opens (YYYY-MM-DD)")
	fs.Var(&f.endReg, "end-reg", "registration closes (YYYY-MM-DD)")
	fs.Var(&f.start, "start", "marathon start date (YYYY-MM-DD)")
	return f
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	fs := a.flags("create")
	f := bindMarathonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := a.marathons.Create(ctx, model.MarathonInput{
		Title:                 f.title,
		Location:              f.location,
		StartRegistrationDate: f.startReg.date,
		EndRegistrationDate:   f.endReg.date,
		MarathonStartDate:     f.start.date,
		RunningDistance:       model.Distance(strings.ToLower(f.distance)),
		Description:           f.description,
		ImageURL:              f.image,
	})
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdUpdate(ctx context.Context, a *app, args []string) error {
	fs := a.flags("update")
	id := fs.String("id", "", "marathon ID")
	f := bindMarathonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "id"); err != nil {
		return err
	}

	set := visited(fs)
	str := func(name string, v string) *string {
		if !set[name] {
			return nil
		}
		return &v
	}
	patch := model.MarathonPatch{
		Title:                 str("title", f.title),
		Location:              str("location", f.location),
		StartRegistrationDate: f.startReg.ptr(),
		EndRegistrationDate:   f.endReg.ptr(),
		MarathonStartDate:     f.start.ptr(),
		Description:           str("description", f.description),
		ImageURL:              str("image", f.image),
	}
	if set["distance"] {
		d := model.Distance(strings.ToLower(f.distance))
		patch.RunningDistance = &d
	}

	res, err := a.marathons.Update(ctx, *id, patch)
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	id, err := idFlag(a, "delete", args)
	if err != nil {
		return err
	}
	// Loading the owned view lets Delete refuse someone else's marathon
	// before calling the backend.
	if _, err := a.marathons.ListMine(ctx); err != nil {
		return err
	}
	if err := a.marathons.Delete(ctx, id); err != nil {
		return err
	}
	return a.print(map[string]string{"deleted": id})
}

func cmdApply(ctx context.Context, a *app, args []string) error {
	fs := a.flags("apply")
	marathonID := fs.String("marathon", "", "marathon ID")
	var in model.ApplicationInput
	fs.StringVar(&in.FirstName, "first", "", "first name")
	fs.StringVar(&in.LastName, "last", "", "last name")
	fs.StringVar(&in.ContactNumber, "contact", "", "contact number")
	fs.StringVar(&in.AdditionalInfo, "info", "", "additional information")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "marathon"); err != nil {
		return err
	}
	if _, ok := a.session.Current(); !ok {
		return apperror.Unauthenticated("You must be logged in to apply for a marathon")
	}

	m, err := a.marathons.Get(ctx, *marathonID)
	if err != nil {
		return err
	}
	application, err := a.applications.Apply(ctx, *m, in)
	if err != nil {
		return err
	}
	return a.print(application)
}

func cmdApplications(ctx context.Context, a *app, args []string) error {
	fs := a.flags("applications")
	search := fs.String("search", "", "server-side search")
	filter := fs.String("filter", "", "local filter over title and applicant name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, ok := a.session.Current(); !ok {
		return apperror.Unauthenticated("You must be logged in to view your applications")
	}
	list, err := a.applications.List(ctx, *search)
	if err != nil {
		return err
	}
	if *filter != "" {
		list = a.applications.Filter(*filter)
	}
	return a.print(list)
}

func cmdApplicationUpdate(ctx context.Context, a *app, args []string) error {
	fs := a.flags("application-update")
	id := fs.String("id", "", "application ID")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	contact := fs.String("contact", "", "contact number")
	info := fs.String("info", "", "additional information")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "id"); err != nil {
		return err
	}
	set := visited(fs)
	str := func(name string, v *string) *string {
		if !set[name] {
			return nil
		}
		return v
	}
	patch := model.ApplicationPatch{
		FirstName:      str("first", first),
		LastName:       str("last", last),
		ContactNumber:  str("contact", contact),
		AdditionalInfo: str("info", info),
	}
	res, err := a.applications.Update(ctx, *id, patch)
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdApplicationDelete(ctx context.Context, a *app, args []string) error {
	id, err := idFlag(a, "application-delete", args)
	if err != nil {
		return err
	}
	if err := a.applications.Delete(ctx, id); err != nil {
		return err
	}
	return a.print(map[string]string{"deleted": id})
}

func cmdStats(ctx context.Context, a *app, args []string) error {
	stats, err := a.stats.Dashboard(ctx)
	if err != nil {
		return err
	}
	return a.print(stats)
}
