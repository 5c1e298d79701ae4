package fetch

// Query documents per resource. The rich variant selects everything the full
// scope set can serve; the reduced variant drops the selections that require
// optional scopes so a narrower grant still yields rows.

var quotesQuery = resourceQuery{
	name: "quotes",
	root: "quotes",
	rich: `query Quotes($first: Int!, $after: String, $since: String) {
  quotes(first: $first, after: $after, updatedAfter: $since) {
    edges { node {
      id number title status total
      client { id }
      createdAt updatedAt
    } }
    pageInfo { hasNextPage endCursor }
  }
}`,
	reduced: `query Quotes($first: Int!, $after: String, $since: String) {
  quotes(first: $first, after: $after, updatedAfter: $since) {
    edges { node {
      id number title status total
      createdAt updatedAt
    } }
    pageInfo { hasNextPage endCursor }
  }
}`,
}

var invoicesQuery = resourceQuery{
	name: "invoices",
	root: "invoices",
	rich: `query Invoices($first: Int!, $after: String, $since: String) {
  invoices(first: $first, after: $after, updatedAfter: $since) {
    edges { node {
      id number status subtotal total balance
      client { id }
      issuedAt dueAt
    } }
    pageInfo { hasNextPage endCursor }
  }
}`,
	reduced: `query Invoices($first: Int!, $after: String, $since: String) {
  invoices(first: $first, after: $after, updatedAfter: $since) {
    edges { node {
      id number status subtotal total balance
      issuedAt dueAt
    } }
    pageInfo { hasNextPage endCursor }
  }
}`,
}

var jobsQuery = resourceQuery{
	name: "jobs",
	root: "jobs",
	rich: `query Jobs($first: Int!, $after: String, $since: String) {
  jobs(first: $first, after: $after, updatedAfter: $since) {
    edges { node {
      id number title status total
      client { id }
      startAt endAt createdAt
    } }
    pageInfo { hasNextPage endCursor }
  }
}`,
	reduced: `query Jobs($first: Int!, $after: String, $since: String) {
  jobs(first: $first, after: $after, updatedAfter: $since) {
    edges { node {
      id number title status total
      startAt endAt createdAt
    } }
    pageInfo { hasNextPage endCursor }
  }
}`,
}

var clientsQuery = resourceQuery{
	name: "clients",
	root: "clients",
	rich: `query Clients($first: Int!, $after: String, $since: String) {
  clients(first: $first, after: $after, updatedAfter: $since) {
    edges { node {
      id name company email phone
      billingAddress { city province }
      createdAt
    } }
    pageInfo { hasNextPage endCursor }
  }
}`,
	reduced: `query Clients($first: Int!, $after: String, $since: String) {
  clients(first: $first, after: $after, updatedAfter: $since) {
    edges { node {
      id name company email phone
      createdAt
    } }
    pageInfo { hasNextPage endCursor }
  }
}`,
}

var paymentsQuery = resourceQuery{
	name: "payments",
	root: "payments",
	rich: `query Payments($first: Int!, $after: String, $since: String) {
  payments(first: $first, after: $after, updatedAfter: $since) {
    edges { node {
      id amount method
      client { id }
      invoice { id }
      receivedAt
    } }
    pageInfo { hasNextPage endCursor }
  }
}`,
	reduced: `query Payments($first: Int!, $after: String, $since: String) {
  payments(first: $first, after: $after, updatedAfter: $since) {
    edges { node {
      id amount method
      invoice { id }
      receivedAt
    } }
    pageInfo { hasNextPage endCursor }
  }
}`,
}
