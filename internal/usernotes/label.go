package usernotes

const (
	legacyLabelGoodUserConstant     = "gooduser"
	legacyLabelSpamWatchConstant    = "spamwatch"
	legacyLabelSpamWarningConstant  = "spamwarn"
	legacyLabelAbuseWarningConstant = "abusewarn"
	legacyLabelBanConstant          = "ban"
	legacyLabelPermanentBanConstant = "permban"
)

// Label enumerates the moderation note labels accepted by the notes API.
type Label string

// Moderation note label enumerations.
const (
	LabelBotBan           Label = Label("BOT_BAN")
	LabelPermaBan         Label = Label("PERMA_BAN")
	LabelBan              Label = Label("BAN")
	LabelAbuseWarning     Label = Label("ABUSE_WARNING")
	LabelSpamWarning      Label = Label("SPAM_WARNING")
	LabelSpamWatch        Label = Label("SPAM_WATCH")
	LabelSolidContributor Label = Label("SOLID_CONTRIBUTOR")
	LabelHelpfulUser      Label = Label("HELPFUL_USER")
)

var legacyLabelTranslation = map[string]Label{
	legacyLabelGoodUserConstant:     LabelHelpfulUser,
	legacyLabelSpamWatchConstant:    LabelSpamWatch,
	legacyLabelSpamWarningConstant:  LabelSpamWarning,
	legacyLabelAbuseWarningConstant: LabelAbuseWarning,
	legacyLabelBanConstant:          LabelBan,
	legacyLabelPermanentBanConstant: LabelPermaBan,
}

// TranslateLabel maps a toolbox warning label to its moderation note label.
// Unknown labels report false.
func TranslateLabel(legacyLabel string) (Label, bool) {
	label, labelKnown := legacyLabelTranslation[legacyLabel]
	return label, labelKnown
}
