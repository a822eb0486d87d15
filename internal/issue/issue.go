// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"slices"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	StartupFailedId
	TeardownFailedId
	AddressInUseId
	DatabaseOpenFailedId
	DrainTimeoutId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

lifespand could not read or validate its configuration file.

## Things you can try:
- Print the effective configuration:
~~~
$ lifespand config show
~~~

- Check where lifespand looks for the file:
~~~
$ lifespand config path
~~~

- Write a fresh default file and edit it from there:
~~~
$ lifespand config init
~~~

## Example configuration:
~~~cue
server: {
	host: "127.0.0.1"
	port: 8080
}
lifespan: {
	startup_timeout: "30s"
	shutdown_timeout: "15s"
}
~~~`,
	}

	startupFailedIssue = &Issue{
		id: StartupFailedId,
		mdMsg: `
# Service startup failed!

One of the resources acquired during startup could not be opened. Everything
that was acquired before the failure has already been released, and no
request was served.

## Things you can try:
- Re-run with debug logging to see which resource failed:
~~~
$ LIFESPAN_LOG_LEVEL=debug lifespand serve
~~~

- Raise the startup timeout if a dependency is slow to come up:
~~~
$ LIFESPAN_LIFESPAN_STARTUP_TIMEOUT=2m lifespand serve
~~~`,
	}

	teardownFailedIssue = &Issue{
		id: TeardownFailedId,
		mdMsg: `
# Teardown reported errors

The service stopped, but one or more resources failed to release cleanly.
Every release step was attempted; the errors above list the ones that failed.

## Things you can try:
- Check whether the failing resource left files or locks behind
- Raise the teardown timeout if releases were cut short:
~~~
$ LIFESPAN_LIFESPAN_TEARDOWN_TIMEOUT=30s lifespand serve
~~~`,
	}

	addressInUseIssue = &Issue{
		id: AddressInUseId,
		mdMsg: `
# Address already in use!

Another process is already listening on the configured host and port.

## Things you can try:
- Find the process holding the port:
~~~
$ lsof -i :8080
~~~

- Or pick another port:
~~~
$ lifespand serve --port 9090
~~~`,
	}

	databaseOpenFailedIssue = &Issue{
		id: DatabaseOpenFailedId,
		mdMsg: `
# Failed to open the visits database!

The SQLite database could not be opened or migrated during startup.

## Things you can try:
- Make sure the directory holding the database exists and is writable
- Point lifespand at another file:
~~~
$ LIFESPAN_DATABASE_PATH=/tmp/visits.db lifespand serve
~~~
- Remove a corrupted database file and let lifespand recreate it`,
		extLinks: []HttpLink{"https://www.sqlite.org/wal.html"},
	}

	drainTimeoutIssue = &Issue{
		id: DrainTimeoutId,
		mdMsg: `
# Shutdown did not drain in time

Requests were still in flight when the shutdown timeout expired. Resources
were released anyway, so those requests may have failed.

## Things you can try:
- Raise the shutdown timeout:
~~~
$ LIFESPAN_LIFESPAN_SHUTDOWN_TIMEOUT=1m lifespand serve
~~~
- Look for handlers that block without honoring request cancellation`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():   configLoadFailedIssue,
		startupFailedIssue.Id():      startupFailedIssue,
		teardownFailedIssue.Id():     teardownFailedIssue,
		addressInUseIssue.Id():       addressInUseIssue,
		databaseOpenFailedIssue.Id(): databaseOpenFailedIssue,
		drainTimeoutIssue.Id():       drainTimeoutIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	values := maps.Values(issues)
	slices.SortFunc(values, func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
	return values
}

func Get(id Id) *Issue {
	return issues[id]
}
