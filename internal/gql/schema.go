// Package gql is the GraphQL transport. It calls the same services as the
// REST handlers, so every rule (guard, validation, notifications) applies to
// both surfaces.
//
// SCHEMA (SDL, for reference):
//
//	type Query {
//	  posts(page: Int = 1): PostData!
//	  post(id: ID!): Post!
//	  user: User!
//	}
//
//	type Mutation {
//	  createUser(userInput: UserInputData!): User!
//	  login(email: String!, password: String!): AuthData!
//	  createPost(postInput: PostInputData!): Post!
//	  updatePost(id: ID!, postInput: PostInputData!): Post!
//	  deletePost(id: ID!): Boolean!
//	  updateStatus(status: String!): User!
//	}
//
// Images are not uploaded through GraphQL: clients PUT the file to
// /post-image first and pass the returned path as postInput.imageUrl.
package gql

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/sakif/blog-feed/internal/auth"
	"github.com/sakif/blog-feed/internal/service"
)

// resolvers holds the services the field resolvers call.
type resolvers struct {
	feed     *service.FeedService
	accounts *service.AuthService
}

// NewSchema builds the executable schema.
//
// graphql-go builds types as values rather than from SDL. Field resolvers
// that return model structs rely on the default resolver, which matches
// GraphQL field names against `json` struct tags (so "_id" and "imageUrl"
// come for free).
func NewSchema(feed *service.FeedService, accounts *service.AuthService) (graphql.Schema, error) {
	r := &resolvers{feed: feed, accounts: accounts}

	creatorType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Creator",
		Fields: graphql.Fields{
			"_id":  &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	postType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Post",
		Fields: graphql.Fields{
			"_id":       &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"title":     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"content":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"imageUrl":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"creator":   &graphql.Field{Type: graphql.NewNonNull(creatorType)},
			"createdAt": &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
			"updatedAt": &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
		},
	})

	userType := graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"_id":    &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"email":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"status": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"posts":  &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.ID)))},
		},
	})

	authDataType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AuthData",
		Fields: graphql.Fields{
			"token":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"userId": &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		},
	})

	postDataType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PostData",
		Fields: graphql.Fields{
			"posts":      &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(postType)))},
			"totalPosts": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})

	userInputType := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "UserInputData",
		Fields: graphql.InputObjectConfigFieldMap{
			"email":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"name":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"password": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	postInputType := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PostInputData",
		Fields: graphql.InputObjectConfigFieldMap{
			"title":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"content":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"imageUrl": &graphql.InputObjectFieldConfig{Type: graphql.String},
		},
	})

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"posts": &graphql.Field{
				Type: graphql.NewNonNull(postDataType),
				Args: graphql.FieldConfigArgument{
					"page": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 1},
				},
				Resolve: r.posts,
			},
			"post": &graphql.Field{
				Type: graphql.NewNonNull(postType),
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.post,
			},
			"user": &graphql.Field{
				Type:    graphql.NewNonNull(userType),
				Resolve: r.user,
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createUser": &graphql.Field{
				Type: graphql.NewNonNull(userType),
				Args: graphql.FieldConfigArgument{
					"userInput": &graphql.ArgumentConfig{Type: graphql.NewNonNull(userInputType)},
				},
				Resolve: r.createUser,
			},
			"login": &graphql.Field{
				Type: graphql.NewNonNull(authDataType),
				Args: graphql.FieldConfigArgument{
					"email":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"password": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.login,
			},
			"createPost": &graphql.Field{
				Type: graphql.NewNonNull(postType),
				Args: graphql.FieldConfigArgument{
					"postInput": &graphql.ArgumentConfig{Type: graphql.NewNonNull(postInputType)},
				},
				Resolve: r.createPost,
			},
			"updatePost": &graphql.Field{
				Type: graphql.NewNonNull(postType),
				Args: graphql.FieldConfigArgument{
					"id":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"postInput": &graphql.ArgumentConfig{Type: graphql.NewNonNull(postInputType)},
				},
				Resolve: r.updatePost,
			},
			"deletePost": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.deletePost,
			},
			"updateStatus": &graphql.Field{
				Type: graphql.NewNonNull(userType),
				Args: graphql.FieldConfigArgument{
					"status": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.updateStatus,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: query, Mutation: mutation})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("gql: building schema: %w", err)
	}
	return schema, nil
}

// =========================================================================
// QUERIES
// =========================================================================

func (r *resolvers) posts(p graphql.ResolveParams) (any, error) {
	page, _ := p.Args["page"].(int)
	result, err := r.feed.ListPosts(p.Context, page)
	if err != nil {
		return nil, toGraphQLError(err)
	}
	return map[string]any{"posts": result.Posts, "totalPosts": result.TotalItems}, nil
}

func (r *resolvers) post(p graphql.ResolveParams) (any, error) {
	post, err := r.feed.GetPost(p.Context, stringArg(p.Args, "id"))
	if err != nil {
		return nil, toGraphQLError(err)
	}
	return post, nil
}

func (r *resolvers) user(p graphql.ResolveParams) (any, error) {
	user, err := r.accounts.GetUser(p.Context, auth.IdentityFromContext(p.Context))
	if err != nil {
		return nil, toGraphQLError(err)
	}
	return user, nil
}

// =========================================================================
// MUTATIONS
// =========================================================================

func (r *resolvers) createUser(p graphql.ResolveParams) (any, error) {
	in, _ := p.Args["userInput"].(map[string]any)
	user, err := r.accounts.Signup(p.Context, service.SignupInput{
		Email:    stringArg(in, "email"),
		Password: stringArg(in, "password"),
		Name:     stringArg(in, "name"),
	})
	if err != nil {
		return nil, toGraphQLError(err)
	}
	return user, nil
}

func (r *resolvers) login(p graphql.ResolveParams) (any, error) {
	result, err := r.accounts.Login(p.Context, stringArg(p.Args, "email"), stringArg(p.Args, "password"))
	if err != nil {
		return nil, toGraphQLError(err)
	}
	return map[string]any{"token": result.Token, "userId": result.User.ID}, nil
}

func (r *resolvers) createPost(p graphql.ResolveParams) (any, error) {
	post, err := r.feed.CreatePost(p.Context, auth.IdentityFromContext(p.Context), postInput(p.Args))
	if err != nil {
		return nil, toGraphQLError(err)
	}
	return post, nil
}

func (r *resolvers) updatePost(p graphql.ResolveParams) (any, error) {
	post, err := r.feed.UpdatePost(p.Context, auth.IdentityFromContext(p.Context), stringArg(p.Args, "id"), postInput(p.Args))
	if err != nil {
		return nil, toGraphQLError(err)
	}
	return post, nil
}

func (r *resolvers) deletePost(p graphql.ResolveParams) (any, error) {
	if err := r.feed.DeletePost(p.Context, auth.IdentityFromContext(p.Context), stringArg(p.Args, "id")); err != nil {
		return nil, toGraphQLError(err)
	}
	return true, nil
}

func (r *resolvers) updateStatus(p graphql.ResolveParams) (any, error) {
	id := auth.IdentityFromContext(p.Context)
	if err := r.accounts.UpdateStatus(p.Context, id, stringArg(p.Args, "status")); err != nil {
		return nil, toGraphQLError(err)
	}
	user, err := r.accounts.GetUser(p.Context, id)
	if err != nil {
		return nil, toGraphQLError(err)
	}
	return user, nil
}

// postInput converts the PostInputData argument. The image is always a
// path here; see the package comment.
func postInput(args map[string]any) service.PostInput {
	in, _ := args["postInput"].(map[string]any)
	return service.PostInput{
		Title:     stringArg(in, "title"),
		Content:   stringArg(in, "content"),
		ImagePath: stringArg(in, "imageUrl"),
	}
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}
