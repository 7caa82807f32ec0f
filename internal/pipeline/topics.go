package pipeline

// Built-in topic tables used when a domain has no curated keyword list.

var trendingTopics = []string{
	"artificial intelligence trends",
	"sustainable living tips",
	"remote work productivity",
	"healthy lifestyle habits",
	"digital marketing strategies",
	"blockchain technology",
	"mental health awareness",
	"personal finance management",
	"social media marketing",
	"web development trends",
}

var microNiches = map[string][]string{
	"technology": {
		"AI automation tools",
		"cybersecurity best practices",
		"cloud computing solutions",
		"mobile app development",
		"data analytics insights",
	},
	"health": {
		"nutrition for busy professionals",
		"home workout routines",
		"stress management techniques",
		"sleep optimization tips",
		"natural remedy guides",
	},
	"business": {
		"small business marketing",
		"entrepreneur success stories",
		"freelancing strategies",
		"startup funding tips",
		"productivity hacks",
	},
	"lifestyle": {
		"minimalist living",
		"sustainable fashion",
		"home organization",
		"travel planning tips",
		"cooking healthy meals",
	},
}

// trendingModifiers extend a topic into extra image-search queries.
var trendingModifiers = []string{
	"guide",
	"tips",
	"best practices",
	"step by step",
	"essential",
}
