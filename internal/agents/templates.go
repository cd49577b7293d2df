package agents

// Template is a canned goal offered to users starting a mission.
type Template struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

var MissionTemplates = []Template{
	{Title: "Market Analysis", Prompt: "Conduct a comprehensive analysis of the electric vehicle market, identifying key players, market trends, and future growth opportunities."},
	{Title: "Blog Post", Prompt: "Write a 1000-word blog post about the benefits of remote work, focusing on productivity, work-life balance, and talent acquisition."},
	{Title: "React Component", Prompt: "Generate a responsive React component for a multi-step form with validation, using Tailwind CSS for styling."},
}
