package leetcode

const questionQuery = `
query selectProblem($titleSlug: String!) {
  question(titleSlug: $titleSlug) {
    questionId
    title
    titleSlug
    content
    difficulty
    stats
    topicTags {
      name
      slug
    }
  }
}`

const randomQuestionQuery = `
query randomQuestionV2($favoriteSlug: String, $categorySlug: String, $searchKeyword: String, $filtersV2: QuestionFilterInput) {
  randomQuestionV2(
    favoriteSlug: $favoriteSlug
    categorySlug: $categorySlug
    filtersV2: $filtersV2
    searchKeyword: $searchKeyword
  ) {
    titleSlug
  }
}`

const recentAcSubmissionsQuery = `
query recentAcSubmissions($username: String!, $limit: Int) {
  recentAcSubmissionList(username: $username, limit: $limit) {
    id
    title
    titleSlug
    timestamp
    lang
    runtime
    memory
  }
}`
