package entityhub

// GraphQL bulk-query documents, one per entity kind. All five share the
// same pagination contract (cursor over edges/pageInfo) and the same
// optional filters: explicit ids and an active flag. Folders additionally
// filter by path.

const foldersQuery = `query Folders($projectName: String!, $first: Int!, $after: String, $ids: [String!], $paths: [String!], $active: Boolean) {
  project(name: $projectName) {
    folders(first: $first, after: $after, ids: $ids, paths: $paths, active: $active) {
      edges {
        node {
          id
          name
          label
          folderType
          parentId
          status
          tags
          active
          hasProducts
          attrib
          data
        }
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}`

const tasksQuery = `query Tasks($projectName: String!, $first: Int!, $after: String, $ids: [String!], $active: Boolean) {
  project(name: $projectName) {
    tasks(first: $first, after: $after, ids: $ids, active: $active) {
      edges {
        node {
          id
          name
          label
          taskType
          folderId
          status
          tags
          active
          attrib
          data
        }
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}`

const productsQuery = `query Products($projectName: String!, $first: Int!, $after: String, $ids: [String!], $active: Boolean) {
  project(name: $projectName) {
    products(first: $first, after: $after, ids: $ids, active: $active) {
      edges {
        node {
          id
          name
          productType
          folderId
          status
          tags
          active
          attrib
          data
        }
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}`

const versionsQuery = `query Versions($projectName: String!, $first: Int!, $after: String, $ids: [String!], $active: Boolean) {
  project(name: $projectName) {
    versions(first: $first, after: $after, ids: $ids, active: $active) {
      edges {
        node {
          id
          name
          version
          productId
          status
          tags
          active
          attrib
          data
        }
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}`

const representationsQuery = `query Representations($projectName: String!, $first: Int!, $after: String, $ids: [String!], $active: Boolean) {
  project(name: $projectName) {
    representations(first: $first, after: $after, ids: $ids, active: $active) {
      edges {
        node {
          id
          name
          versionId
          status
          tags
          active
          attrib
          data
        }
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}`

// kindQuery maps each kind to its bulk-query document.
var kindQuery = map[Kind]string{
	KindFolder:         foldersQuery,
	KindTask:           tasksQuery,
	KindProduct:        productsQuery,
	KindVersion:        versionsQuery,
	KindRepresentation: representationsQuery,
}

// kindQueryField maps each kind to its field name under "project" in the
// response payload.
var kindQueryField = map[Kind]string{
	KindFolder:         "folders",
	KindTask:           "tasks",
	KindProduct:        "products",
	KindVersion:        "versions",
	KindRepresentation: "representations",
}
