/*
Jsonconfig implements configuration, reading json into typed sections.

To use:

1) Create the Schema. List your configurable Implementations. Each Implementations
can be backed by several named Implementations.
 2. Schema.Parse parses bytes and creates a Configuration.
    a) for each Implementations, pick which Implementation.
    b) json.Unmarshal the json into that Implementation
    c) Validate the result
 3. Configuration maps each section name to its Implementation, which can
    now build components or be json.Marshal'ed to print its configuration

Example:
1) Create the Schema

	schema := jsonconfig.Schema(map[string]jsonconfig.Implementations{
	 "Scheduler": {
	  "default": &SchedulerConfig{},
	  "": &SchedulerConfig{Type: "default", HistorySize: 1000},
	 },
	 "Platform": {
	  "fake": &FakePlatformConfig{},
	 }
	}

2) Parse

	config, _ := schema.Parse([]byte(`{
	 "Scheduler": {
	  "Type": "default",
	  "HistorySize": 50
	 }
	}`)

3) Use the sections

	sched := config["Scheduler"].(*SchedulerConfig).Create(obs, stat)

# Notes

Sections missing from the text get the "" default. Sections in the text that
the Schema doesn't know are rejected.
*/
package jsonconfig
