package navitia

// TrafficReports is the subset of the Navitia traffic_reports response used by the monitor.
type TrafficReports struct {
	Disruptions []Disruption `json:"disruptions"`
	Context     Context      `json:"context"`
}

// Context carries the server-side time of the response, e.g. "20230801T123456".
type Context struct {
	CurrentDatetime string `json:"current_datetime"`
	Timezone        string `json:"timezone"`
}

type Disruption struct {
	ID              string           `json:"id"`
	Status          string           `json:"status"`
	Cause           string           `json:"cause"`
	Severity        Severity         `json:"severity"`
	ImpactedObjects []ImpactedObject `json:"impacted_objects"`
	Messages        []Message        `json:"messages"`
}

// Severity.Effect is a GTFS-RT style effect code such as NO_SERVICE or REDUCED_SERVICE.
type Severity struct {
	Name     string `json:"name"`
	Effect   string `json:"effect"`
	Priority int    `json:"priority"`
}

type ImpactedObject struct {
	PtObject PtObject `json:"pt_object"`
}

type PtObject struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	EmbeddedType string `json:"embedded_type"`
}

type Message struct {
	Text    string  `json:"text"`
	Channel Channel `json:"channel"`
}

type Channel struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ContentType string   `json:"content_type"`
	Types       []string `json:"types"`
}
