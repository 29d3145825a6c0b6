// Command arbor serves page flows defined as a state graph, caching published
// pages on disk.
package main

func main() {
	Execute()
}
