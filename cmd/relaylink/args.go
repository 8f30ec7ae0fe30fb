package main

type initCmd struct {
	Name string `arg:"positional,required" help:"your display name"`
}

type restoreCmd struct {
	Name  string   `arg:"positional,required" help:"your display name"`
	Words []string `arg:"positional,required" help:"the 24 backup words"`
}

type linkCmd struct{}

type addCmd struct {
	Link    string `arg:"positional,required" help:"friend link (relaylink://add?...)"`
	Message string `arg:"positional" help:"optional note sent with the request"`
}

type requestsCmd struct{}

type acceptCmd struct {
	Query string `arg:"positional,required" help:"request id or sender name"`
}

type sendCmd struct {
	To        string `arg:"positional,required" help:"friend id or name"`
	Text      string `arg:"positional,required" help:"message text"`
	Urgent    bool   `arg:"-u,--urgent" help:"deliver even during quiet hours"`
	Context   string `arg:"--context" help:"short context tag"`
	RespondBy string `arg:"--respond-by" help:"reply deadline, RFC 3339"`
}

type tickCmd struct{}

type friendsCmd struct{}

type removeCmd struct {
	Query string `arg:"positional,required" help:"friend id or name"`
}

type prefsCmd struct {
	Quiet          string `arg:"--quiet" help:"quiet hours as HH:MM-HH:MM, or off"`
	Timezone       string `arg:"--tz" help:"IANA timezone for quiet hours and batch times"`
	Batch          string `arg:"--batch" help:"comma-separated HH:MM delivery times, or off"`
	Tone           string `arg:"--tone" help:"friendly, professional or casual"`
	Greeting       string `arg:"--greeting" help:"personal, formal or minimal"`
	UrgentInQuiet  string `arg:"--urgent-in-quiet" help:"on/off: let urgent messages through quiet hours"`
	Summarize      string `arg:"--summarize" help:"on/off: summarize long messages"`
	IncludeContext string `arg:"--include-context" help:"on/off: show context tags"`

	Peer          string `arg:"--peer" help:"friend id or name for the override flags below"`
	Priority      string `arg:"--priority" help:"normal, high or low"`
	AlwaysDeliver string `arg:"--always-deliver" help:"on/off"`
	PeerTone      string `arg:"--peer-tone" help:"tone used for this friend"`
	ClearPeer     bool   `arg:"--clear-peer" help:"remove the friend's override"`
}

type backupCmd struct{}

type healthCmd struct{}

type args struct {
	Config   string `arg:"-c,--config" help:"path to config file (default: <data dir>/config.yaml)"`
	DataDir  string `arg:"-d,--data-dir" help:"directory holding identity and state"`
	RelayURL string `arg:"-r,--relay" help:"relay base URL"`
	Verbose  bool   `arg:"-v,--verbose" help:"debug logging"`

	Init     *initCmd     `arg:"subcommand:init" help:"create a new identity"`
	Restore  *restoreCmd  `arg:"subcommand:restore" help:"recreate an identity from backup words"`
	Link     *linkCmd     `arg:"subcommand:link" help:"print your friend link"`
	Add      *addCmd      `arg:"subcommand:add" help:"send a friend request"`
	Requests *requestsCmd `arg:"subcommand:requests" help:"list pending friend requests"`
	Accept   *acceptCmd   `arg:"subcommand:accept" help:"accept a friend request"`
	Send     *sendCmd     `arg:"subcommand:send" help:"send a message"`
	Tick     *tickCmd     `arg:"subcommand:tick" help:"poll the relay and print what is ready"`
	Friends  *friendsCmd  `arg:"subcommand:friends" help:"list friends"`
	Remove   *removeCmd   `arg:"subcommand:remove" help:"remove a friend"`
	Prefs    *prefsCmd    `arg:"subcommand:prefs" help:"show or change delivery preferences"`
	Backup   *backupCmd   `arg:"subcommand:backup" help:"print your backup words"`
	Health   *healthCmd   `arg:"subcommand:health" help:"check the relay"`
}

func (args) Description() string {
	return "relaylink exchanges end-to-end encrypted messages through a relay.\n"
}
