package agent

import (
	"bytes"
	"text/template"
	"time"
)

// DefaultLocation is the location fact given to the model.
const DefaultLocation = "Spain"

const persona = "You are EventAnalizer-GPT, an AI designed to autonomously analize images and extract event information in iCalendar format."

var stepTemplate = template.Must(template.New("step").Parse(`FACTS:
1. Current date is {{.Date}}
2. Current location is {{.Location}}
---

CONSTRAINTS:
1. Exclusively use the COMMANDS listed below. Do NOT make up commands.
2. You can repeat commands, but the arguments must be differents.
3. Explore all given URLs before finishing the process.
4. No user assistance.
---

MEMORY:
{{.Memory}}
---

COMMANDS (command name, command argument name, ... : command description):
{{.Commands}}
---

GENERAL STRATEGY:
Effective information gathering is crucial for understanding an event in depth. Accuracy must be the top priority. Here's a balanced approach to ensure thorough fact-checking:
1. Start by loading the provided image and extracting text using the "ocr" command. This will give you the basic details about the event.
2. Next, use this text to perform a "google" search. This will give you a broad range of information about the event and help you understand its context.
3. To confirm the event's location, employ the "gmaps" command. This will ensure you have the right geographical information.
4. After the general search, it's time to dive deeper. Use the "webpageqa" command on the top search results from the "google" command to retrieve specific details about the event, like its address.
5. If the first webpage doesn't yield the necessary information, don't just repeat the "webpageqa" command on the same page. Instead, move on to other relevant webpages from the search results and use the "webpageqa" command on them.
6. In the event that you are still unable to find specific details, don't be afraid to refine your "google" search with more precise queries.
7. Use the "webpageqa" command on the new search results, but remember not to linger too long on one result. If the necessary information isn't found, move on to the next webpage.
8. Your aim is to gather as much available information as possible. Make sure you have exhausted all your resources before concluding the process.
9. If you find that you've gathered enough credible information, next action command attribute must be empty and fill out iCalendar attribute.
`))

var calendarTemplate = template.Must(template.New("calendar").Parse(`MEMORY:
{{.Memory}}
---

Given the information stated in the memory, please return the event information.
`))

// Prompts renders the prompts sent to the model. They are rebuilt for
// every call.
type Prompts struct {
	Location string
	Now      func() time.Time
}

type promptData struct {
	Date     string
	Location string
	Memory   string
	Commands string
}

// System returns the persona used for every call.
func (p Prompts) System() string {
	return persona
}

// Step renders the per-step instructions.
func (p Prompts) Step(memory *Memory, catalog string) (string, error) {
	return render(stepTemplate, promptData{
		Date:     FormatDate(p.now()),
		Location: p.location(),
		Memory:   memory.Render(),
		Commands: catalog,
	})
}

// Calendar renders the final extraction request.
func (p Prompts) Calendar(memory *Memory) (string, error) {
	return render(calendarTemplate, promptData{Memory: memory.Render()})
}

// FormatDate formats t as "dd/mm/yyyy, Weekday".
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006, Monday")
}

func (p Prompts) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Prompts) location() string {
	if p.Location != "" {
		return p.Location
	}
	return DefaultLocation
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
