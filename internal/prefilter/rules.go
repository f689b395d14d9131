package prefilter

// DefaultBlockedDomains are job-board alert, marketing and bulk-mail senders.
// A sender matches when its domain equals an entry or is a sub-domain of one.
var DefaultBlockedDomains = []string{
	// job boards and alert digests
	"indeed.com",
	"indeedemail.com",
	"glassdoor.com",
	"ziprecruiter.com",
	"monster.com",
	"dice.com",
	"careerbuilder.com",
	"simplyhired.com",
	"jobleads.com",
	"talent.com",
	"wellfound.com",
	"otta.com",
	// social and content platforms
	"facebookmail.com",
	"quora.com",
	"medium.com",
	"substack.com",
	"beehiiv.com",
	// email service providers
	"mailchimp.com",
	"mcsv.net",
	"mcdlv.net",
	"sendgrid.net",
	"mailgun.org",
	"hubspotemail.net",
	"constantcontact.com",
	"klaviyomail.com",
	"sparkpostmail.com",
	"mandrillapp.com",
	"exacttarget.com",
	"rsgsv.net",
}

// DefaultSenderPrefixes are automated-sender address prefixes
var DefaultSenderPrefixes = []string{
	"noreply@",
	"no-reply@",
	"no_reply@",
	"donotreply@",
	"do-not-reply@",
	"newsletter@",
	"newsletters@",
	"news@",
	"marketing@",
	"promotions@",
	"digest@",
	"alerts@",
	"jobalerts@",
	"notifications@",
	"mailer-daemon@",
	"bounce@",
}

// DefaultSubjectPhrases are marketing and alert phrases matched as substrings of the subject
var DefaultSubjectPhrases = []string{
	"newsletter",
	"weekly digest",
	"daily digest",
	"job alert",
	"jobs you may be interested in",
	"recommended jobs",
	"new jobs for you",
	"jobs matching",
	"top picks for you",
	"% off",
	"limited time offer",
	"flash sale",
	"webinar",
	"your weekly",
	"trending on",
	"people you may know",
}

// DefaultContentSignals are phrases that indicate bulk newsletter content in the body preview
var DefaultContentSignals = []string{
	"unsubscribe",
	"manage your preferences",
	"view in browser",
	"view this email in your browser",
	"update your email preferences",
	"opt out",
	"you are receiving this email because",
	"you received this email because",
	"no longer wish to receive",
	"add us to your address book",
}

// DefaultContentSignalThreshold is the number of distinct signals that rejects a message
const DefaultContentSignalThreshold = 2
