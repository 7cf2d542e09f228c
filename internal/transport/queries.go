package transport

// GraphQL documents for the catalog Admin API. Values are always transmitted
// as strings; the type field tells the service how to interpret them.

const productUpdateMutation = `
mutation productUpdateMetafields($input: ProductInput!) {
  productUpdate(input: $input) {
    product {
      id
      metafields(first: 25) {
        edges {
          node {
            id
            namespace
            key
            type
            value
          }
        }
      }
    }
    userErrors {
      field
      message
    }
  }
}`

const metafieldDefinitionQuery = `
query getMetafieldDefinition($ownerType: MetafieldOwnerType!, $namespace: String!, $key: String!) {
  metafieldDefinitions(ownerType: $ownerType, namespace: $namespace, keys: [$key], first: 1) {
    edges {
      node {
        id
        name
        namespace
        key
        type {
          name
        }
      }
    }
  }
}`

const productMetafieldQuery = `
query getProductMetafield($productId: ID!, $namespace: String!, $key: String!) {
  product(id: $productId) {
    metafield(namespace: $namespace, key: $key) {
      id
      namespace
      key
      type
      value
    }
  }
}`

// Response shapes, mirroring the documents above.

type metafieldNode struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

type userErrorNode struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type productUpdateResponse struct {
	ProductUpdate struct {
		Product *struct {
			ID         string `json:"id"`
			Metafields struct {
				Edges []struct {
					Node metafieldNode `json:"node"`
				} `json:"edges"`
			} `json:"metafields"`
		} `json:"product"`
		UserErrors []userErrorNode `json:"userErrors"`
	} `json:"productUpdate"`
}

type definitionResponse struct {
	MetafieldDefinitions struct {
		Edges []struct {
			Node struct {
				ID        string `json:"id"`
				Name      string `json:"name"`
				Namespace string `json:"namespace"`
				Key       string `json:"key"`
				Type      struct {
					Name string `json:"name"`
				} `json:"type"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"metafieldDefinitions"`
}

type productMetafieldResponse struct {
	Product *struct {
		Metafield *metafieldNode `json:"metafield"`
	} `json:"product"`
}
