// Package harness runs query scenarios against every execution backend.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	models:
//	  - models/products.cue   # relative to the scenario file
//	schema: |                 # or inline CUE, or both
//	  model: tags: fields: {id: int, label: string}
//	seed:
//	  products:
//	    - {id: 1, name: Laptop, price: 1000}
//	cases:
//	  - name: cheap_first
//	    model: products
//	    query: "category=Electronics&orderBy=price"   # resource style
//	    expect:
//	      rows: [{name: Mouse}, {name: Keyboard}, {name: Monitor}, {name: Laptop}]
//	  - name: walk_pages
//	    model: products
//	    graph: {orderBy: ["price:desc"], first: 2}  # graph style
//	    walk: true
//	    expect:
//	      count: 6
//	  - name: bad_field
//	    model: products
//	    query: "nope=1"
//	    expect:
//	      reject: {kind: UNKNOWN_FIELD, token: nope}
//
// # Expectations
//
//   - rows: the result rows, in order; each row is a subset match
//   - count: the number of result rows
//   - has_more: whether the page was full
//   - reject: the rejection kind and, optionally, the offending token
//
// Every case runs on the SQL backend (a fresh in-memory SQLite database) and
// on the memory backend; both must satisfy the expectation. A walk case
// follows next cursors until the last page and checks the concatenated rows.
//
// # Golden SQL
//
// RunWithGolden additionally snapshots the SQL compiled for every accepted
// case, in both dialects, under testdata/golden/{scenario.Name}.golden.
package harness
