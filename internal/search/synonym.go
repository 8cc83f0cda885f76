package search

// RoleVariants lists alternate spellings of words that show up in career names. Listings rarely use the
// exact wording of a career catalog entry.
var RoleVariants = map[string][]string{
	"engineer":  {"developer"},
	"developer": {"engineer"},
	"frontend":  {"front end"},
	"backend":   {"back end"},
	"fullstack": {"full stack"},
	"devops":    {"site reliability"},
	"ui":        {"user interface"},
	"ux":        {"user experience"},
}

func GetVariants(word string) []string {
	if word == "" {
		return []string{}
	}
	if v, ok := RoleVariants[word]; ok {
		out := make([]string, 0, len(v))
		out = append(out, v...)
		return out
	}
	return []string{}
}
