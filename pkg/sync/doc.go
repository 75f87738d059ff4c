/*
The sync package keeps the project's file tree consistent between contexts.

Each context has its own Tree. The Coordinator owns the local tree: a mutation
is applied to the tree first, and then announced to the other contexts as a
delta. Only the initial publish, and answers to explicit requests, send the
full tree.

The other contexts attach at startup, and ask for the tree once they're
listening. Messages sent before a context attaches are lost, so the
Coordinator waits until a quorum of contexts have asked before it publishes
anything in response. Their requests are counted by a Barrier.

Empty directories get an entry of their own. Directories with children only
exist implicitly, as the prefix of their children's paths.
*/
package sync
