// Command dataagent serves natural-language and SQL queries over a
// database whose schema it learns from entity types and the live catalog.
package main

func main() {
	Execute()
}
